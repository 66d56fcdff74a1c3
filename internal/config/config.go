// Package config loads tracker settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crypto-tracker/internal/orchestrator"
	"crypto-tracker/internal/source"
	"crypto-tracker/internal/storage/sqlite"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all tracker settings.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logger    LoggerConfig    `yaml:"logger"`
}

type SourceConfig struct {
	URL        string        `yaml:"url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type ScrapeConfig struct {
	Interval     time.Duration `yaml:"interval"`
	TopN         int           `yaml:"top_n"`
	RowScanLimit int           `yaml:"row_scan_limit"` // 0 scans every row
}

type RetentionConfig struct {
	Days     int           `yaml:"days"`
	Interval time.Duration `yaml:"interval"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional archive
}

// RedisConfig enables the snapshot cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			URL:        source.DefaultURL,
			UserAgent:  source.DefaultUserAgent,
			Timeout:    source.DefaultTimeout,
			MaxRetries: source.DefaultMaxRetries,
		},
		Scrape: ScrapeConfig{
			Interval: 10 * time.Minute,
			TopN:     orchestrator.DefaultTopN,
		},
		Retention: RetentionConfig{
			Days:     7,
			Interval: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: sqlite.DefaultPath,
		},
		Redis: RedisConfig{
			TTL: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":5000",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: FormatJSON,
		},
	}
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds a Config from defaults, the optional YAML file at path and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SOURCE_URL", &c.Source.URL)
	str("SOURCE_USER_AGENT", &c.Source.UserAgent)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("DATABASE_PATH", &c.Storage.SQLitePath)
	str("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Logger.Level)
	str("LOG_FORMAT", &c.Logger.Format)

	return errors.Join(
		dur("SOURCE_TIMEOUT", &c.Source.Timeout),
		num("SOURCE_MAX_RETRIES", &c.Source.MaxRetries),
		dur("SCRAPE_INTERVAL", &c.Scrape.Interval),
		num("SCRAPE_TOP_N", &c.Scrape.TopN),
		num("SCRAPE_ROW_SCAN_LIMIT", &c.Scrape.RowScanLimit),
		num("RETENTION_DAYS", &c.Retention.Days),
		dur("RETENTION_INTERVAL", &c.Retention.Interval),
		num("REDIS_DB", &c.Redis.DB),
		dur("REDIS_TTL", &c.Redis.TTL),
	)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Scrape.Interval <= 0 {
		return fmt.Errorf("scrape interval must be positive, got %s", c.Scrape.Interval)
	}
	if c.Scrape.TopN < 1 || c.Scrape.TopN > orchestrator.MaxTopN {
		return fmt.Errorf("top_n must be between 1 and %d, got %d", orchestrator.MaxTopN, c.Scrape.TopN)
	}
	if c.Scrape.RowScanLimit < 0 {
		return fmt.Errorf("row_scan_limit must not be negative, got %d", c.Scrape.RowScanLimit)
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention days must not be negative, got %d", c.Retention.Days)
	}
	if c.Retention.Days > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention interval must be positive, got %s", c.Retention.Interval)
	}
	if c.Source.URL == "" {
		return errors.New("source url is required")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite driver requires sqlite_path")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("postgres driver requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
