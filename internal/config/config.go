package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueueConfig holds task queue configuration
type QueueConfig struct {
	MaxSize int `yaml:"max_size"`
}

// RateLimiterConfig holds rate limiter configuration
type RateLimiterConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// HealthConfig holds the gRPC health service configuration. A zero port
// disables it.
type HealthConfig struct {
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the task queue
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Queue       QueueConfig       `yaml:"queue"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Health      HealthConfig      `yaml:"health"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads configuration from a YAML file, fills defaults and applies
// environment overrides. An empty path uses defaults and environment only.
func Load(filePath string) (*Config, error) {
	var cfg Config

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	setDefaults(&cfg)

	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration holding only default values
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Queue.MaxSize == 0 {
		cfg.Queue.MaxSize = 1000
	}

	if cfg.RateLimiter.RequestsPerSecond == 0 {
		cfg.RateLimiter.RequestsPerSecond = 1000
	}
	if cfg.RateLimiter.BurstSize == 0 {
		cfg.RateLimiter.BurstSize = 100
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.SampleInterval == 0 {
		cfg.Metrics.SampleInterval = 15 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) error {
	if port := os.Getenv("TASKQUEUE_SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid TASKQUEUE_SERVER_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if maxSize := os.Getenv("TASKQUEUE_QUEUE_MAX_SIZE"); maxSize != "" {
		n, err := strconv.Atoi(maxSize)
		if err != nil {
			return fmt.Errorf("invalid TASKQUEUE_QUEUE_MAX_SIZE %q: %w", maxSize, err)
		}
		cfg.Queue.MaxSize = n
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return nil
}

// Validate validates the configuration and reports every problem found
func (c *Config) Validate() error {
	var err error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Queue.MaxSize < 1 {
		err = multierr.Append(err, fmt.Errorf("queue.max_size must be positive, got %d", c.Queue.MaxSize))
	}
	if c.RateLimiter.Enabled && (c.RateLimiter.RequestsPerSecond <= 0 || c.RateLimiter.BurstSize < 1) {
		err = multierr.Append(err, fmt.Errorf("rate_limiter needs positive requests_per_second and burst_size"))
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			err = multierr.Append(err, fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port))
		} else if c.Metrics.Port == c.Server.Port {
			err = multierr.Append(err, fmt.Errorf("metrics.port must differ from server.port"))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			err = multierr.Append(err, fmt.Errorf("metrics.path must start with /"))
		}
	}
	if c.Health.GRPCPort < 0 || c.Health.GRPCPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("health.grpc_port must be between 0 and 65535, got %d", c.Health.GRPCPort))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return err
}
