// Package config loads the process configuration from YAML: plain
// YAML-tagged structs with sensible defaults applied after unmarshal,
// rather than a validating config framework.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig describes one ingestor instance.
type ExchangeConfig struct {
	Name    string   `yaml:"name"`
	WSURL   string   `yaml:"wss_url"`
	Symbols []string `yaml:"symbols"`
}

// AggregatorConfig controls the Bar Aggregator (C6).
type AggregatorConfig struct {
	ResampleIntervalSec int    `yaml:"resample_interval_sec"`
	ParquetCompression  string `yaml:"parquet_compression"`
	ScheduleMinutes     int    `yaml:"schedule_minutes"`
}

// FetcherConfig controls the Scheduled Fetcher (C7).
type FetcherConfig struct {
	Dataset             string        `yaml:"dataset"`
	Keys                []string      `yaml:"keys"`
	ScheduleMinutes     int           `yaml:"schedule_minutes"`
	StartupLookbackDays int           `yaml:"startup_lookback_days"`
	RuntimeLookbackDays int           `yaml:"runtime_lookback_days"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
	Burst               int           `yaml:"burst"`
	BaseURL             string        `yaml:"base_url"`
	HTTPTimeout         time.Duration `yaml:"http_timeout"`
}

// HealthConfig controls the Health Reporter (C9).
type HealthConfig struct {
	ReportIntervalSec int    `yaml:"report_interval_sec"`
	ListenAddr        string `yaml:"listen_addr"`
}

// AuditConfig controls the optional Postgres audit trail (C10).
type AuditConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig controls the optional ingestor dedup cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Window   time.Duration `yaml:"window"`
}

// TestingOverrides shortens intervals and relocates base_path for test
// runs.
type TestingOverrides struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path"`
}

// Config is the full recognised configuration surface. Unrecognised keys
// are ignored by yaml.v3's default decoding; missing keys fall back to
// the defaults applied in Load.
type Config struct {
	BasePath            string           `yaml:"base_path"`
	Exchanges           []ExchangeConfig `yaml:"exchanges"`
	WriteIntervalSec    int              `yaml:"write_interval_sec"`
	ReconnectBackoff    time.Duration    `yaml:"reconnect_backoff"`
	MaxReconnectBackoff time.Duration    `yaml:"max_reconnect_backoff"`
	ReconnectJitter     float64          `yaml:"reconnect_jitter"`
	Aggregator          AggregatorConfig `yaml:"aggregator"`
	Fetcher             FetcherConfig    `yaml:"fetcher"`
	Health              HealthConfig     `yaml:"health"`
	Audit               AuditConfig      `yaml:"audit"`
	Redis               RedisConfig      `yaml:"redis"`
	Testing             TestingOverrides `yaml:"testing"`
}

// Load reads and parses a YAML config file, applying defaults for any
// zero-valued field.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WriteIntervalSec <= 0 {
		cfg.WriteIntervalSec = 60
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 10 * time.Second
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = 300 * time.Second
	}
	if cfg.ReconnectJitter <= 0 {
		cfg.ReconnectJitter = 0.5
	}
	if cfg.Aggregator.ResampleIntervalSec <= 0 {
		cfg.Aggregator.ResampleIntervalSec = 1
	}
	if cfg.Aggregator.ParquetCompression == "" {
		cfg.Aggregator.ParquetCompression = "snappy"
	}
	if cfg.Aggregator.ScheduleMinutes <= 0 {
		cfg.Aggregator.ScheduleMinutes = 1440
	}
	if cfg.Fetcher.ScheduleMinutes <= 0 {
		cfg.Fetcher.ScheduleMinutes = 15
	}
	if cfg.Fetcher.StartupLookbackDays <= 0 {
		cfg.Fetcher.StartupLookbackDays = 7
	}
	if cfg.Fetcher.RuntimeLookbackDays <= 0 {
		cfg.Fetcher.RuntimeLookbackDays = 1
	}
	if cfg.Fetcher.Dataset == "" {
		cfg.Fetcher.Dataset = "external"
	}
	if cfg.Fetcher.RequestsPerSecond <= 0 {
		cfg.Fetcher.RequestsPerSecond = 5
	}
	if cfg.Fetcher.Burst <= 0 {
		cfg.Fetcher.Burst = 5
	}
	if cfg.Fetcher.HTTPTimeout <= 0 {
		cfg.Fetcher.HTTPTimeout = 10 * time.Second
	}
	if cfg.Health.ReportIntervalSec <= 0 {
		cfg.Health.ReportIntervalSec = 60
	}
	if cfg.Health.ListenAddr == "" {
		cfg.Health.ListenAddr = ":9090"
	}
	if cfg.Redis.Window <= 0 {
		cfg.Redis.Window = 10 * time.Minute
	}
	if cfg.Testing.Enabled {
		if cfg.Testing.BasePath != "" {
			cfg.BasePath = cfg.Testing.BasePath
		}
		cfg.WriteIntervalSec = 1
		cfg.Aggregator.ScheduleMinutes = 1
		cfg.Fetcher.ScheduleMinutes = 1
		cfg.Health.ReportIntervalSec = 1
	}
}

// Validate enforces the fatal-config cases: missing base_path or no
// exchanges configured.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("fatal config: base_path is required")
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("fatal config: at least one exchange must be configured")
	}
	for _, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("fatal config: exchange entry missing name")
		}
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("fatal config: exchange %s has no symbols", ex.Name)
		}
	}
	return nil
}
