package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 4096, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 12000, cfg.Anthropic.ChunkChars)
	assert.Equal(t, 20, cfg.Anthropic.RequestsPerMinute)
	assert.Equal(t, 5000, cfg.Odoo.Limit)
	assert.Equal(t, 30*time.Second, cfg.FTP.Timeout)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, "pdftotext", cfg.OCR.PdfToTextPath)
	assert.Equal(t, 4, cfg.Images.Workers)
	assert.Equal(t, 10, cfg.Matcher.MaxResults)
	assert.InDelta(t, 0.90, cfg.Matcher.HighThreshold, 0.001)
	assert.InDelta(t, 0.60, cfg.Matcher.MediumThreshold, 0.001)
	assert.Equal(t, 3, cfg.Matcher.MinPartialCodeLen)
	assert.InDelta(t, 0.5, cfg.Merge.DefaultConfidence, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/catalog
log:
  level: debug
  format: console
server:
  port: 9090
ftp:
  host: ftp.supplier.example.com
  timeout: 1m
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/catalog", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ftp.supplier.example.com", cfg.FTP.Host)
	assert.Equal(t, time.Minute, cfg.FTP.Timeout)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Matcher.MaxResults)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CATALOG_STORE_DRIVER", "postgres")
	t.Setenv("CATALOG_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("CATALOG_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with enough populated to pass the
// shared validation checks.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "catalog.db"
	cfg.Matcher.HighThreshold = 0.9
	cfg.Matcher.MediumThreshold = 0.6
	cfg.Merge.DefaultConfidence = 0.5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateExtract(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("extract"))

	cfg.Anthropic.Key = ""
	err := cfg.Validate("extract")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateExtract_MissingStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Store.DatabaseURL = ""
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("extract")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ftp.host is required")

	cfg.FTP.Host = "ftp.supplier.example.com"
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidateSync(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "odoo.url is required")
	assert.Contains(t, err.Error(), "odoo.api_key is required")

	cfg.Odoo.URL = "https://erp.example.com"
	cfg.Odoo.Database = "prod"
	cfg.Odoo.APIKey = "key"
	assert.NoError(t, cfg.Validate("sync"))
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Matcher.MediumThreshold = 0.95
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "matcher.medium_threshold")

	cfg.Matcher.MediumThreshold = 0.6
	cfg.Merge.DefaultConfidence = 1.5
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "merge.default_confidence")

	cfg.Merge.DefaultConfidence = 0.5
	assert.NoError(t, cfg.Validate("serve"))
}
