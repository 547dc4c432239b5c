// Package config loads the service's YAML configuration file and
// applies environment-variable overrides for values that should never
// live in a committed file (database password, Redis address, Slack
// webhook URL).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// ServerConfig describes the ports the dashboard and metrics HTTP
// servers bind to.
type ServerConfig struct {
	DashboardPort string `yaml:"dashboard_port"`
	MetricsPort   string `yaml:"metrics_port"`
}

// DatabaseConfig describes the Postgres connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig describes the Redis connection used for distributed
// locking and the chain-tip cache.
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	TipCacheTTL time.Duration `yaml:"tip_cache_ttl"`
}

// ServiceConfig describes one chain-data service a job's blockchain can
// be audited against (canonical or comparison side).
type ServiceConfig struct {
	ID           string        `yaml:"id"`
	BlockchainID string        `yaml:"blockchain_id"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SchedulingConfig tunes the dispatcher's polling intervals and the
// engine's concurrency budget.
type SchedulingConfig struct {
	CheckAllInterval    time.Duration `yaml:"check_all_interval"`
	CheckJobInterval    time.Duration `yaml:"check_job_interval"`
	CleanInterval       time.Duration `yaml:"clean_interval"`
	BlockWorkerPoolSize int           `yaml:"block_worker_pool_size"`
	MaxInFlightPerJob   int           `yaml:"max_in_flight_per_job"`
	RetentionWindow     time.Duration `yaml:"retention_window"`
}

// LoggingConfig describes the logger's level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ErrorSinkConfig describes where error reports are sent.
type ErrorSinkConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	Channel         string `yaml:"channel"`
}

// Config is the service's full typed configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Services   []ServiceConfig  `yaml:"services"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Logging    LoggingConfig    `yaml:"logging"`
	ErrorSink  ErrorSinkConfig  `yaml:"error_sink"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			DashboardPort: "8080",
			MetricsPort:   "9090",
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Address:     "localhost:6379",
			LockTTL:     30 * time.Second,
			TipCacheTTL: 10 * time.Second,
		},
		Scheduling: SchedulingConfig{
			CheckAllInterval:    60 * time.Second,
			CheckJobInterval:    5 * time.Minute,
			CleanInterval:       time.Hour,
			BlockWorkerPoolSize: 20,
			MaxInFlightPerJob:   50,
			RetentionWindow:     7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, parses, and validates the YAML configuration file at path,
// applying defaults for unset fields and environment-variable overrides
// for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeValidation, "failed to read config file")
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeValidation, "failed to parse config file")
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFromEnv overrides secret-bearing fields from the environment.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("DB_HOST"); v != "" {
		config.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		config.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("DASHBOARD_PORT"); v != "" {
		config.Server.DashboardPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		config.ErrorSink.SlackWebhookURL = v
	}
	return nil
}

// validate checks that the loaded configuration is complete enough to
// start the service.
func validate(config *Config) error {
	if config.Database.Host == "" {
		return applerrors.NewValidationError("database host is required")
	}

	if len(config.Services) == 0 {
		return applerrors.NewValidationError("at least one service must be configured")
	}
	for _, svc := range config.Services {
		if svc.ID == "" {
			return applerrors.NewValidationError("service id is required")
		}
		if svc.BaseURL == "" {
			return applerrors.NewValidationError(fmt.Sprintf("service base_url is required for service %q", svc.ID))
		}
	}

	if config.Scheduling.BlockWorkerPoolSize <= 0 {
		return applerrors.NewValidationError("block worker pool size must be greater than 0")
	}
	if config.Scheduling.MaxInFlightPerJob <= 0 {
		return applerrors.NewValidationError("max in-flight per job must be greater than 0")
	}

	return nil
}
