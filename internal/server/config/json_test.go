package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJson_OverlaysValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"database_dsn": "postgres://json/db",
		"s3_bucket": "json-bucket",
		"s3_region": "eu-west-1",
		"s3_base_endpoint": "http://minio:9000/",
		"enable_virus_scan": true,
		"scanner_addr": "clamav:3310",
		"max_file_size": 1048576,
		"expiration_interval": "30m",
		"expiration_page_size": 250,
		"audit_queue_size": 64
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"server", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, "postgres://json/db", cfg.DatabaseDSN)
	assert.Equal(t, "json-bucket", cfg.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.True(t, cfg.EnableVirusScan)
	assert.Equal(t, "clamav:3310", cfg.ScannerAddr)
	assert.Equal(t, int64(1048576), cfg.MaxFileSize)
	assert.Equal(t, 30*time.Minute, cfg.ExpirationInterval)
	assert.Equal(t, 250, cfg.ExpirationPageSize)
	assert.Equal(t, 64, cfg.AuditQueueSize)
}

func TestParseJson_NoFileIsNoop(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"server"}

	cfg := &Config{}
	cfg.LoadDefaults()
	before := *cfg
	parseJson(cfg)

	assert.Equal(t, before, *cfg)
}

func TestParseJson_InvalidFilePanics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"server", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	assert.Panics(t, func() { parseJson(cfg) })
}
