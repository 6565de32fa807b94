// Package config loads TOML configuration with environment variable override
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the service binaries.
type Config struct {
	// Service name, used as metric subsystem and log field
	ServiceName string `mapstructure:"service_name"`
	// Service version
	Version string `mapstructure:"version"`
	// Environment: dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP server settings
	HTTP HTTPConfig `mapstructure:"http"`
	// Database settings
	Database DatabaseConfig `mapstructure:"database"`
	// Redis settings
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka settings
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Logger settings
	Logger LoggerConfig `mapstructure:"logger"`
	// Metrics settings
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Exchange engine settings
	Engine EngineConfig `mapstructure:"engine"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port int    `mapstructure:"port" default:"8080"`
	// Read timeout in seconds
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// Write timeout in seconds
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Driver: mysql
	Driver string `mapstructure:"driver" default:"mysql"`
	DSN    string `mapstructure:"dsn"`
	// Connection pool
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// Connection max lifetime in seconds
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// Enable SQL logging
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// Slow query threshold in milliseconds
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"6379"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" default:"0"`
	// Pool and timeouts in seconds
	MaxPoolSize  int `mapstructure:"max_pool_size" default:"10"`
	ConnTimeout  int `mapstructure:"conn_timeout" default:"5"`
	ReadTimeout  int `mapstructure:"read_timeout" default:"3"`
	WriteTimeout int `mapstructure:"write_timeout" default:"3"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// Topic for outgoing notification events
	NotificationTopic string `mapstructure:"notification_topic" default:"exchange.notifications"`
	MaxRetries        int    `mapstructure:"max_retries" default:"3"`
	// Retry backoff in milliseconds
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	Output     string `mapstructure:"output" default:"stdout"`
	FilePath   string `mapstructure:"file_path" default:"logs/app.log"`
	MaxSize    int    `mapstructure:"max_size" default:"100"`
	MaxBackups int    `mapstructure:"max_backups" default:"10"`
	MaxAge     int    `mapstructure:"max_age" default:"30"`
	Compress   bool   `mapstructure:"compress" default:"true"`
	WithCaller bool   `mapstructure:"with_caller" default:"true"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/metrics"`
}

// EngineConfig holds the matching engine sweep and timeout settings.
type EngineConfig struct {
	// Interval between full sweeps in milliseconds
	SweepInterval int `mapstructure:"sweep_interval" default:"1000"`
	// Pause after processing each request in milliseconds
	SweepYield int `mapstructure:"sweep_yield" default:"25"`
	// How long a request may sit untouched in waiting state, in seconds
	WaitingTimeout int `mapstructure:"waiting_timeout" default:"1800"`
	// How long a fixed rate is honoured in input reservation, in seconds
	RateFixTimeout int `mapstructure:"rate_fix_timeout" default:"900"`
	// Interval of the outbox relay in milliseconds
	OutboxInterval int `mapstructure:"outbox_interval" default:"500"`
	// Outbox relay batch size
	OutboxBatchSize int `mapstructure:"outbox_batch_size" default:"100"`
}

// SweepIntervalDuration returns the sweep interval as a duration.
func (e EngineConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(e.SweepInterval) * time.Millisecond
}

// SweepYieldDuration returns the per-item yield as a duration.
func (e EngineConfig) SweepYieldDuration() time.Duration {
	return time.Duration(e.SweepYield) * time.Millisecond
}

// WaitingTimeoutDuration returns the waiting liveness window as a duration.
func (e EngineConfig) WaitingTimeoutDuration() time.Duration {
	return time.Duration(e.WaitingTimeout) * time.Second
}

// RateFixTimeoutDuration returns the fixed-rate window as a duration.
func (e EngineConfig) RateFixTimeoutDuration() time.Duration {
	return time.Duration(e.RateFixTimeout) * time.Second
}

// OutboxIntervalDuration returns the outbox relay polling interval.
func (e EngineConfig) OutboxIntervalDuration() time.Duration {
	return time.Duration(e.OutboxInterval) * time.Millisecond
}

// Load reads a TOML config file, applies defaults and APP_ env overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("engine sweep_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.notification_topic", "exchange.notifications")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("engine.sweep_interval", 1000)
	v.SetDefault("engine.sweep_yield", 25)
	v.SetDefault("engine.waiting_timeout", 1800)
	v.SetDefault("engine.rate_fix_timeout", 900)
	v.SetDefault("engine.outbox_interval", 500)
	v.SetDefault("engine.outbox_batch_size", 100)
}
