package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Log      LogConfig      `mapstructure:"log"`
}

// WorkerConfig holds batch worker configuration.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`      // Concurrent jobs per worker process
	QueueGroup      string        `mapstructure:"queue_group"`      // NATS queue group shared by workers
	JobTimeout      time.Duration `mapstructure:"job_timeout"`      // Upper bound for a single job run
	PersistEvery    int           `mapstructure:"persist_every"`    // Units between durable progress flushes
	IterationSlack  int           `mapstructure:"iteration_slack"`  // Extra claim iterations beyond limit/batch_size
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // Grace period for draining on stop
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	Schema             string `mapstructure:"schema"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis configuration for progress and idempotency state.
type RedisConfig struct {
	URL         string        `mapstructure:"url"`          // redis:// connection URL
	KeyTTL      time.Duration `mapstructure:"key_ttl"`      // Lifetime of per-job keys
	PoolSize    int           `mapstructure:"pool_size"`    // Connection pool size
	DialTimeout time.Duration `mapstructure:"dial_timeout"` // Timeout for establishing connections
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// QuotaConfig holds quota snapshot cache configuration.
type QuotaConfig struct {
	SnapshotCacheSize int           `mapstructure:"snapshot_cache_size"` // Max cached quota snapshots
	SnapshotTTL       time.Duration `mapstructure:"snapshot_ttl"`        // Snapshot staleness bound
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	// Unmarshal configuration
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Required fields validation
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}

	// Validate numeric ranges
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	if c.Worker.PersistEvery < 1 {
		return errors.New("worker.persist_every must be at least 1")
	}

	if c.Worker.IterationSlack < 0 {
		return errors.New("worker.iteration_slack must not be negative")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}

	if c.Redis.KeyTTL <= 0 {
		return errors.New("redis.key_ttl must be positive")
	}

	if c.Quota.SnapshotCacheSize < 1 {
		return errors.New("quota.snapshot_cache_size must be at least 1")
	}

	return nil
}
