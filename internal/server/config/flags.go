package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-v string   clamd scanner address (host:port; empty disables scanning)
//	-k string   at-rest encryption passphrase (empty disables encryption)
//	-i int      expiration sweep interval, minutes
//	-n int      expiration sweep page size
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other packages.
//   - The interval flag is accepted as an integer in minutes and converted
//     to a time.Duration.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-u", "-p", "-b", "-g", "-e", "-v", "-k", "-i", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	scannerAddr := fs.String("v", config.ScannerAddr, "clamd scanner address")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "at-rest encryption passphrase")
	expirationInterval := fs.Int("i", int(config.ExpirationInterval.Minutes()), "expiration sweep interval (in minutes)")
	fs.IntVar(&config.ExpirationPageSize, "n", config.ExpirationPageSize, "expiration sweep page size")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ScannerAddr = *scannerAddr
	config.ExpirationInterval = time.Duration(*expirationInterval) * time.Minute
}
