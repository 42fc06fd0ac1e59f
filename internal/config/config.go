// Package config loads server settings from an optional YAML file with
// GOVGRANT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/govgrant/internal/backup"
	"github.com/dukerupert/govgrant/internal/logging"
)

type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// LogFormat is text, json or pretty.
	LogFormat       string          `yaml:"log_format"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	// AllowedOrigins are extra host patterns admitted on /ws.
	AllowedOrigins []string     `yaml:"allowed_origins"`
	Backup         BackupConfig `yaml:"backup"`
}

// BackupConfig controls database snapshots. The passphrase is only read
// from GOVGRANT_BACKUP_PASSPHRASE so it never lands in a config file.
type BackupConfig struct {
	Dir        string          `yaml:"dir"`
	S3         backup.S3Config `yaml:"s3"`
	Passphrase string          `yaml:"-"`
}

// RateLimitConfig bounds mutating requests per client IP. Requests <= 0
// disables limiting.
type RateLimitConfig struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

func Default() *Config {
	return &Config{
		Port:            "8080",
		DBPath:          "govgrant.db",
		LogLevel:        "info",
		LogFormat:       logging.FormatText,
		ShutdownTimeout: "10s",
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   "1m",
		},
		Backup: BackupConfig{
			Dir: ".",
			S3:  backup.S3Config{Region: "us-east-1"},
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GOVGRANT_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("GOVGRANT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GOVGRANT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GOVGRANT_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("GOVGRANT_SHUTDOWN_TIMEOUT"); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv("GOVGRANT_RATE_LIMIT_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GOVGRANT_RATE_LIMIT_REQUESTS: %w", err)
		}
		c.RateLimit.Requests = n
	}
	if v := os.Getenv("GOVGRANT_RATE_LIMIT_WINDOW"); v != "" {
		c.RateLimit.Window = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_S3_ENDPOINT"); v != "" {
		c.Backup.S3.Endpoint = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_S3_BUCKET"); v != "" {
		c.Backup.S3.Bucket = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_S3_REGION"); v != "" {
		c.Backup.S3.Region = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_S3_ACCESS_KEY"); v != "" {
		c.Backup.S3.AccessKey = v
	}
	if v := os.Getenv("GOVGRANT_BACKUP_S3_SECRET_KEY"); v != "" {
		c.Backup.S3.SecretKey = v
	}
	c.Backup.Passphrase = os.Getenv("GOVGRANT_BACKUP_PASSPHRASE")
	return nil
}

// Validate checks that durations parse and the log format is known.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must be set")
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON, logging.FormatPretty:
	default:
		return fmt.Errorf("invalid log_format %q (valid: text, json, pretty)", c.LogFormat)
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RateLimit.Window); err != nil {
		return fmt.Errorf("invalid rate_limit.window: %w", err)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

// GetShutdownTimeout returns the graceful shutdown budget. Call after
// Validate.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

func (c *Config) GetRateLimitWindow() time.Duration {
	d, _ := time.ParseDuration(c.RateLimit.Window)
	return d
}
