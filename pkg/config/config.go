// Package config loads and validates bindertrack configuration from YAML files
// with environment-variable overrides. Every optional backend (Redis,
// PostgreSQL, Kafka, metrics) has its own typed section and an Enabled switch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Resolver ResolverConfig `yaml:"resolver"`
	RPC      RPCConfig      `yaml:"rpc"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBatchPIDs    int           `yaml:"maxBatchPids"`
}

// ResolverConfig controls where snapshots come from and how far a closure
// walk may run.
type ResolverConfig struct {
	SnapshotPath     string        `yaml:"snapshotPath"`
	MaxSnapshotBytes int64         `yaml:"maxSnapshotBytes"`
	OpenAttempts     int           `yaml:"openAttempts"`
	MaxIterations    int           `yaml:"maxIterations"`
	Timeout          time.Duration `yaml:"timeout"`
	Annotate         bool          `yaml:"annotate"`
	ProcRoot         string        `yaml:"procRoot"`
}

// RPCConfig controls the JSON-over-TCP endpoint.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// PostgresConfig holds PostgreSQL connection parameters for the report store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	BufferSize    int         `yaml:"bufferSize"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ResolutionEvents string `yaml:"resolutionEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the resolver cannot run with.
func (c *Config) Validate() error {
	if c.Resolver.SnapshotPath == "" {
		return fmt.Errorf("resolver.snapshotPath must not be empty")
	}
	if c.Resolver.MaxIterations < 0 {
		return fmt.Errorf("resolver.maxIterations must be >= 0, got %d", c.Resolver.MaxIterations)
	}
	if c.Resolver.MaxSnapshotBytes < 0 {
		return fmt.Errorf("resolver.maxSnapshotBytes must be >= 0, got %d", c.Resolver.MaxSnapshotBytes)
	}
	if c.Server.MaxBatchPIDs <= 0 {
		return fmt.Errorf("server.maxBatchPids must be > 0, got %d", c.Server.MaxBatchPIDs)
	}
	return nil
}

// defaultConfig returns a Config that runs the resolver against the local
// debugfs with every optional backend switched off.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBatchPIDs:    64,
		},
		Resolver: ResolverConfig{
			SnapshotPath:     "/sys/kernel/debug/binder/transactions",
			MaxSnapshotBytes: 64 << 20,
			OpenAttempts:     2,
			MaxIterations:    10000,
			Timeout:          5 * time.Second,
			Annotate:         true,
			ProcRoot:         "/proc",
		},
		RPC: RPCConfig{
			Enabled: false,
			Port:    9091,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bindertrack",
			User:            "bindertrack",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bindertrack-group",
			Topics: KafkaTopics{
				ResolutionEvents: "binder-resolutions",
			},
			BufferSize: 1000,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BT_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("BT_SERVER_PORT", &cfg.Server.Port)
	setString("BT_RESOLVER_SNAPSHOT_PATH", &cfg.Resolver.SnapshotPath)
	setInt("BT_RESOLVER_MAX_ITERATIONS", &cfg.Resolver.MaxIterations)
	if v := os.Getenv("BT_RESOLVER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resolver.Timeout = d
		}
	}
	setBool("BT_RESOLVER_ANNOTATE", &cfg.Resolver.Annotate)
	setString("BT_RESOLVER_PROC_ROOT", &cfg.Resolver.ProcRoot)
	setBool("BT_RPC_ENABLED", &cfg.RPC.Enabled)
	setInt("BT_RPC_PORT", &cfg.RPC.Port)
	setBool("BT_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("BT_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BT_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BT_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BT_POSTGRES_USER", &cfg.Postgres.User)
	setString("BT_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("BT_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("BT_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("BT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("BT_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("BT_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BT_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("BT_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BT_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("BT_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("BT_METRICS_PORT", &cfg.Metrics.Port)
}
