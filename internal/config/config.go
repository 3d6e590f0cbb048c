// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides, e.g.
// SLOTWAVE_DATABASE_URL overrides database.url.
const envPrefix = "SLOTWAVE_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NotificationsConfig contains the notification pipeline settings.
type NotificationsConfig struct {
	Enabled       bool            `koanf:"enabled"`
	RatingBaseURL string          `koanf:"rating_base_url"`
	Email         EmailConfig     `koanf:"email"`
	Worker        WorkerConfig    `koanf:"worker"`
	Scheduler     SchedulerConfig `koanf:"scheduler"`
}

// EmailConfig contains SMTP transport settings.
type EmailConfig struct {
	Enabled        bool    `koanf:"enabled"`
	SMTPHost       string  `koanf:"smtp_host"`
	SMTPPort       int     `koanf:"smtp_port"`
	SMTPUser       string  `koanf:"smtp_user"`
	SMTPPassword   string  `koanf:"smtp_password"`
	FromName       string  `koanf:"from_name"`
	FromAddress    string  `koanf:"from_address"`
	SendsPerSecond float64 `koanf:"sends_per_second"`
}

// WorkerConfig contains delivery worker settings.
type WorkerConfig struct {
	BatchSize    int           `koanf:"batch_size" validate:"gt=0"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	SendTimeout  time.Duration `koanf:"send_timeout"`
}

// SchedulerConfig contains reminder scheduler settings.
type SchedulerConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	SendTimeout  time.Duration `koanf:"send_timeout"`
	DedupTTL     time.Duration `koanf:"dedup_ttl"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Email: EmailConfig{
				SMTPPort:       587,
				SendsPerSecond: 5,
			},
			Worker: WorkerConfig{
				BatchSize:    10,
				PollInterval: time.Minute,
				SendTimeout:  30 * time.Second,
			},
			Scheduler: SchedulerConfig{
				PollInterval: time.Minute,
				SendTimeout:  30 * time.Second,
				DedupTTL:     2 * time.Hour,
			},
		},
	}
}

// Load reads configuration from the given YAML file (if it exists) and
// applies environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
