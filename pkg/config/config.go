// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Docs, Extractor, Database, Kafka, Redis, Storage, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Docs      DocsConfig      `yaml:"docs"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// DocsConfig locates the documentation search index served by the API.
type DocsConfig struct {
	// IndexURI is a path, file://, minio:// or s3:// URI.
	IndexURI string `yaml:"indexUri"`
	MaxBytes int64  `yaml:"maxBytes"`
}

// ExtractorConfig bounds extraction work.
type ExtractorConfig struct {
	// MaxInputBits caps the length of either input accepted over the API.
	MaxInputBits int `yaml:"maxInputBits"`
	// Concurrency is the number of jobs the worker runs at once.
	Concurrency int `yaml:"concurrency"`
	// RazDetailed enables the slower, tighter Raz output search.
	RazDetailed bool `yaml:"razDetailed"`
	// Timeout bounds one extraction, over the API and in the worker.
	// Zero disables the limit.
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the extraction ledger connection. Driver is
// "postgres" or "sqlite"; Path is used by sqlite only.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
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

// DSN returns a data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ExtractionJobs    string `yaml:"extractionJobs"`
	ExtractionResults string `yaml:"extractionResults"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// LocalCacheSize bounds the in-process cache used when redis is off.
	LocalCacheSize int `yaml:"localCacheSize"`
}

// StorageConfig holds object store endpoints for index documents.
type StorageConfig struct {
	MinIO MinIOConfig `yaml:"minio"`
	S3    S3Config    `yaml:"s3"`
}

// MinIOConfig configures minio:// index URIs. An empty Endpoint disables them.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
}

// S3Config configures s3:// index URIs.
type S3Config struct {
	Enabled      bool   `yaml:"enabled"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// RateLimitConfig limits extraction requests per client.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
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
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not postgres or sqlite", c.Database.Driver))
	}
	if c.Extractor.MaxInputBits <= 0 {
		errs = append(errs, errors.New("extractor.maxInputBits must be positive"))
	}
	if c.Extractor.Concurrency <= 0 {
		errs = append(errs, errors.New("extractor.concurrency must be positive"))
	}
	if c.Extractor.Timeout < 0 {
		errs = append(errs, errors.New("extractor.timeout must not be negative"))
	}
	if c.Redis.LocalCacheSize <= 0 {
		errs = append(errs, errors.New("redis.localCacheSize must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rateLimit needs positive requestsPerSecond and burst"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  20 * time.Second,
		},
		Docs: DocsConfig{
			IndexURI: "docs/searchindex.js",
			MaxBytes: 64 << 20,
		},
		Extractor: ExtractorConfig{
			MaxInputBits: 1 << 24,
			Concurrency:  4,
			Timeout:      time.Minute,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Path:            "cryptomite.db",
			Host:            "localhost",
			Port:            5432,
			Database:        "cryptomite",
			User:            "cryptomite",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "cryptomite-workers",
			Topics: KafkaTopics{
				ExtractionJobs:    "extraction-jobs",
				ExtractionResults: "extraction-results",
			},
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			CacheTTL:       10 * time.Minute,
			LocalCacheSize: 4096,
		},
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("CM_SERVER_PORT", &cfg.Server.Port)
	setString("CM_DOCS_INDEX_URI", &cfg.Docs.IndexURI)
	setInt("CM_EXTRACTOR_MAX_INPUT_BITS", &cfg.Extractor.MaxInputBits)
	setInt("CM_EXTRACTOR_CONCURRENCY", &cfg.Extractor.Concurrency)
	setDuration("CM_EXTRACTOR_TIMEOUT", &cfg.Extractor.Timeout)
	setString("CM_DATABASE_DRIVER", &cfg.Database.Driver)
	setString("CM_DATABASE_PATH", &cfg.Database.Path)
	setString("CM_DATABASE_HOST", &cfg.Database.Host)
	setInt("CM_DATABASE_PORT", &cfg.Database.Port)
	setString("CM_DATABASE_NAME", &cfg.Database.Database)
	setString("CM_DATABASE_USER", &cfg.Database.User)
	setString("CM_DATABASE_PASSWORD", &cfg.Database.Password)
	setString("CM_DATABASE_SSLMODE", &cfg.Database.SSLMode)
	if v := os.Getenv("CM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("CM_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("CM_REDIS_ADDR", &cfg.Redis.Addr)
	setString("CM_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("CM_MINIO_ENDPOINT", &cfg.Storage.MinIO.Endpoint)
	setString("CM_MINIO_ACCESS_KEY", &cfg.Storage.MinIO.AccessKey)
	setString("CM_MINIO_SECRET_KEY", &cfg.Storage.MinIO.SecretKey)
	setBool("CM_S3_ENABLED", &cfg.Storage.S3.Enabled)
	setString("CM_S3_REGION", &cfg.Storage.S3.Region)
	setString("CM_S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	setBool("CM_RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	setString("CM_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("CM_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("CM_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("CM_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
