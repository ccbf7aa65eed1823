package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	History     HistoryConfig     `yaml:"history"`
	Source      SourceConfig      `yaml:"source"`
	Accounting  AccountingConfig  `yaml:"accounting"`
	Writer      WriterConfig      `yaml:"writer"`
	Storage     StorageConfig     `yaml:"storage"`
	Notify      NotifyConfig      `yaml:"notify"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MonitorConfig struct {
	// IntervalSec is the pause between completed cycles, not a schedule.
	IntervalSec int `yaml:"interval_sec"`
	// CrashCooldownSec is the shorter pause after an unhandled cycle failure.
	CrashCooldownSec int `yaml:"crash_cooldown_sec"`
}

type HistoryConfig struct {
	LookbackDays int `yaml:"lookback_days"`
	// RequestPacingMs is the fixed delay between successive history requests
	// to the same venue.
	RequestPacingMs int `yaml:"request_pacing_ms"`
	// RateLimitCooldownSec is how long to wait after an HTTP 429 before the
	// identical request is retried.
	RateLimitCooldownSec int `yaml:"rate_limit_cooldown_sec"`
	// RateLimitMaxRetries bounds 429 retries per request. Zero means retry
	// forever, which reproduces the venue's documented "wait and repeat"
	// guidance at the cost of an unbounded wait.
	RateLimitMaxRetries int `yaml:"rate_limit_max_retries"`
}

type SourceConfig struct {
	Okx   OkxSourceConfig   `yaml:"okx"`
	Bybit BybitSourceConfig `yaml:"bybit"`
}

type OkxSourceConfig struct {
	RestURL    string          `yaml:"rest_url"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	APIKey     string          `yaml:"-"`
	APISecret  string          `yaml:"-"`
	Passphrase string          `yaml:"-"`
}

type BybitSourceConfig struct {
	RestURL    string          `yaml:"rest_url"`
	RecvWindow string          `yaml:"recv_window"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	APIKey     string          `yaml:"-"`
	APISecret  string          `yaml:"-"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type AccountingConfig struct {
	// Enabled turns on the signed bills/execution reconciliation pass.
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
}

type WriterConfig struct {
	WorkbookPath string `yaml:"workbook_path"`
	SeriesDir    string `yaml:"series_dir"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type NotifyConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// LoadConfig reads and validates the YAML configuration. Credentials are
// never read from the file; they are filled from the environment here so a
// checked-in config stays secret-free.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.IntervalSec <= 0 {
		cfg.Monitor.IntervalSec = 300
	}
	if cfg.Monitor.CrashCooldownSec <= 0 {
		cfg.Monitor.CrashCooldownSec = 60
	}
	if cfg.History.LookbackDays <= 0 {
		cfg.History.LookbackDays = 90
	}
	if cfg.History.RequestPacingMs <= 0 {
		cfg.History.RequestPacingMs = 200
	}
	if cfg.History.RateLimitCooldownSec <= 0 {
		cfg.History.RateLimitCooldownSec = 60
	}
	if cfg.History.RateLimitMaxRetries < 0 {
		cfg.History.RateLimitMaxRetries = 10
	}
	if cfg.Source.Okx.RestURL == "" {
		cfg.Source.Okx.RestURL = "https://www.okx.com"
	}
	if cfg.Source.Bybit.RestURL == "" {
		cfg.Source.Bybit.RestURL = "https://api.bybit.com"
	}
	if cfg.Source.Bybit.RecvWindow == "" {
		cfg.Source.Bybit.RecvWindow = "5000"
	}
	if cfg.Accounting.MaxAttempts <= 0 {
		cfg.Accounting.MaxAttempts = 5
	}
	if cfg.Writer.WorkbookPath == "" {
		cfg.Writer.WorkbookPath = "data/usdt_signals.csv"
	}
	if cfg.Writer.SeriesDir == "" {
		cfg.Writer.SeriesDir = "data/series"
	}
	if cfg.Notify.URL == "" {
		cfg.Notify.URL = "https://notify-api.line.me/api/notify"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Source.Okx.APIKey = strings.TrimSpace(os.Getenv("OKX_API_KEY"))
	cfg.Source.Okx.APISecret = strings.TrimSpace(os.Getenv("OKX_API_SECRET"))
	cfg.Source.Okx.Passphrase = strings.TrimSpace(os.Getenv("OKX_API_PASSPHRASE"))
	cfg.Source.Bybit.APIKey = strings.TrimSpace(os.Getenv("BYBIT_API_KEY"))
	cfg.Source.Bybit.APISecret = strings.TrimSpace(os.Getenv("BYBIT_API_SECRET"))
	cfg.Notify.Token = strings.TrimSpace(os.Getenv("LINE_NOTIFY_TOKEN"))

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}
	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}
	if cfg.History.LookbackDays > 365 {
		return fmt.Errorf("history.lookback_days must not exceed 365")
	}
	if cfg.Accounting.Enabled {
		if cfg.Source.Okx.APIKey == "" || cfg.Source.Okx.APISecret == "" || cfg.Source.Okx.Passphrase == "" {
			return fmt.Errorf("OKX_API_KEY, OKX_API_SECRET and OKX_API_PASSPHRASE are required when accounting is enabled")
		}
		if cfg.Source.Bybit.APIKey == "" || cfg.Source.Bybit.APISecret == "" {
			return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required when accounting is enabled")
		}
	}
	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}
	return nil
}
