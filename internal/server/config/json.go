package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/flagx"
	"github.com/dmitrijs2005/filekeeper/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. It uses timex.Duration for interval fields, which parses both
// string values such as "1h" and integer nanoseconds. After unmarshalling,
// its fields are copied into the runtime Config struct.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	EnableVirusScan       bool   `json:"enable_virus_scan"`
	ScannerAddr           string `json:"scanner_addr"`
	AllowOnScannerFailure bool   `json:"allow_on_scanner_failure"`

	EncryptionKey string `json:"encryption_key"`

	MaxFileSize        int64          `json:"max_file_size"`
	ExpirationInterval timex.Duration `json:"expiration_interval"`
	ExpirationPageSize int            `json:"expiration_page_size"`
	AuditQueueSize     int            `json:"audit_queue_size"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; when
// neither is set, no file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics: a requested-but-broken config file is
// a startup error, not a condition to run past.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.EnableVirusScan = c.EnableVirusScan
	config.ScannerAddr = c.ScannerAddr
	config.AllowOnScannerFailure = c.AllowOnScannerFailure
	config.EncryptionKey = c.EncryptionKey
	config.MaxFileSize = c.MaxFileSize
	config.ExpirationInterval = time.Duration(c.ExpirationInterval.Duration)
	config.ExpirationPageSize = c.ExpirationPageSize
	config.AuditQueueSize = c.AuditQueueSize
}
