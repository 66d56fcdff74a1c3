package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Scrape.Interval)
	assert.Equal(t, 10, cfg.Scrape.TopN)
	assert.Equal(t, 0, cfg.Scrape.RowScanLimit)
	assert.Equal(t, 7, cfg.Retention.Days)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "crypto_data.db", cfg.Storage.SQLitePath)
	assert.Equal(t, ":5000", cfg.HTTP.Addr)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "tracker.yaml", `
scrape:
  interval: 5m
  top_n: 5
retention:
  days: 3
storage:
  driver: postgres
  postgres_dsn: postgres://localhost/prices
redis:
  addr: localhost:6379
  ttl: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Scrape.Interval)
	assert.Equal(t, 5, cfg.Scrape.TopN)
	assert.Equal(t, 3, cfg.Retention.Days)
	assert.Equal(t, 24*time.Hour, cfg.Retention.Interval, "unset keys keep defaults")
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "tracker.yaml", "scrape:\n  top_n: 5\n")
	t.Setenv("SCRAPE_TOP_N", "8")
	t.Setenv("DATABASE_PATH", "/data/prices.db")
	t.Setenv("SCRAPE_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scrape.TopN)
	assert.Equal(t, "/data/prices.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.Scrape.Interval)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("SCRAPE_TOP_N", "ten")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCRAPE_TOP_N")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"memory driver", func(c *Config) { c.Storage.Driver = DriverMemory }, true},
		{"zero interval", func(c *Config) { c.Scrape.Interval = 0 }, false},
		{"top_n zero", func(c *Config) { c.Scrape.TopN = 0 }, false},
		{"top_n at cap", func(c *Config) { c.Scrape.TopN = 10 }, true},
		{"top_n above cap", func(c *Config) { c.Scrape.TopN = 11 }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, false},
		{"negative retention", func(c *Config) { c.Retention.Days = -1 }, false},
		{"retention disabled", func(c *Config) { c.Retention.Days = 0; c.Retention.Interval = 0 }, true},
		{"negative scan limit", func(c *Config) { c.Scrape.RowScanLimit = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := writeFile(t, ".env", "CRYPTO_TRACKER_TEST_KEY=loaded\n")
	t.Setenv("CRYPTO_TRACKER_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("CRYPTO_TRACKER_TEST_KEY"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CRYPTO_TRACKER_TEST_KEY"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug", Format: FormatConsole})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(LoggerConfig{Level: "verbose"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
