package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Events    EventsConfig    `yaml:"events"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds Redis settings. An empty Addr disables Redis and the
// process falls back to in-process locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig tunes the batch driver and aggregator fan-out.
type PipelineConfig struct {
	BatchSizeDays            int `yaml:"batch_size_days"`
	BatchDelayMS             int `yaml:"batch_delay_ms"`
	MaxConcurrentAggregators int `yaml:"max_concurrent_aggregators"`
	KeyConcurrency           int `yaml:"key_concurrency"`
	LockTTLSeconds           int `yaml:"lock_ttl_seconds"`
}

func (c PipelineConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func (c PipelineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ScheduleConfig controls the recurring pending run.
type ScheduleConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	LookbackDays    int  `yaml:"lookback_days"`
}

// Interval returns the schedule interval as a duration
func (c ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Event sources.
const (
	SourcePostgres  = "postgres"
	SourceSnowflake = "snowflake"
)

// EventsConfig picks where raw events are read from.
type EventsConfig struct {
	Source string `yaml:"source"`
}

// SnowflakeConfig holds Snowflake data lake configuration
type SnowflakeConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Account          string `yaml:"account"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema"`
	Warehouse        string `yaml:"warehouse"`
	Role             string `yaml:"role"`
}

// Metrics backends.
const (
	MetricsPostgres = "postgres"
	MetricsDynamoDB = "dynamodb"
)

// StorageConfig holds storage configuration
type StorageConfig struct {
	MetricsBackend     string `yaml:"metrics_backend"`
	DynamoDBTable      string `yaml:"dynamodb_table"`
	ReportType         string `yaml:"report_type"`
	LocalPath          string `yaml:"local_path"`
	S3Bucket           string `yaml:"s3_bucket"`
	AWSRegion          string `yaml:"aws_region"`
	AWSProfile         string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AWSAccessKeyID     string `yaml:"-"`
	AWSSecretAccessKey string `yaml:"-"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// UsesAWS reports whether any configured backend needs AWS clients.
func (c StorageConfig) UsesAWS() bool {
	return c.MetricsBackend == MetricsDynamoDB || c.ReportType == "s3"
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Pipeline.BatchSizeDays == 0 {
		cfg.Pipeline.BatchSizeDays = 3
	}
	if cfg.Pipeline.BatchDelayMS == 0 {
		cfg.Pipeline.BatchDelayMS = 500
	}
	if cfg.Pipeline.MaxConcurrentAggregators == 0 {
		cfg.Pipeline.MaxConcurrentAggregators = 6
	}
	if cfg.Pipeline.KeyConcurrency == 0 {
		cfg.Pipeline.KeyConcurrency = 8
	}
	if cfg.Pipeline.LockTTLSeconds == 0 {
		cfg.Pipeline.LockTTLSeconds = 60
	}
	if cfg.Schedule.IntervalMinutes == 0 {
		cfg.Schedule.IntervalMinutes = 15
	}
	if cfg.Schedule.LookbackDays == 0 {
		cfg.Schedule.LookbackDays = 7
	}
	if cfg.Events.Source == "" {
		cfg.Events.Source = SourcePostgres
	}
	// A connection string carries its own DB.SCHEMA.
	if cfg.Snowflake.ConnectionString == "" {
		if cfg.Snowflake.Database == "" {
			cfg.Snowflake.Database = "IGNITE_DATA_LAKE"
		}
		if cfg.Snowflake.Schema == "" {
			cfg.Snowflake.Schema = "SFMC"
		}
	}
	if cfg.Storage.MetricsBackend == "" {
		cfg.Storage.MetricsBackend = MetricsPostgres
	}
	if cfg.Storage.DynamoDBTable == "" {
		cfg.Storage.DynamoDBTable = "kpi-metrics"
	}
	if cfg.Storage.ReportType == "" {
		cfg.Storage.ReportType = "none"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("KPI_EVENTS_SOURCE"); v != "" {
		cfg.Events.Source = v
	}
	if v := os.Getenv("KPI_SCHEDULE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Schedule.Enabled = b
		}
	}

	if v := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); v != "" {
		cfg.Snowflake.ConnectionString = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}

	if v := os.Getenv("KPI_METRICS_BACKEND"); v != "" {
		cfg.Storage.MetricsBackend = v
	}
	if v := os.Getenv("KPI_REPORT_TYPE"); v != "" {
		cfg.Storage.ReportType = v
	}
	if v := os.Getenv("KPI_REPORT_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	cfg.Storage.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Storage.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
