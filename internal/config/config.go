package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPPort           int    `mapstructure:"HTTP_PORT"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`

	DBHost     string `mapstructure:"LEDGER_DB_HOST"`
	DBPort     int    `mapstructure:"LEDGER_DB_PORT"`
	DBUser     string `mapstructure:"LEDGER_DB_USER"`
	DBPassword string `mapstructure:"LEDGER_DB_PASSWORD"`
	DBName     string `mapstructure:"LEDGER_DB_NAME"`
	DBSSLMode  string `mapstructure:"LEDGER_DB_SSLMODE"`

	MigrationsPath      string        `mapstructure:"MIGRATIONS_PATH"`
	DBConnectRetries    int           `mapstructure:"DB_CONNECT_RETRIES"`
	DBConnectRetryDelay time.Duration `mapstructure:"DB_CONNECT_RETRY_DELAY"`

	KafkaEnabled       bool   `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokerURL     string `mapstructure:"KAFKA_BROKER_URL"`
	KafkaEventsTopic   string `mapstructure:"KAFKA_EVENTS_TOPIC"`
	KafkaCommandsTopic string `mapstructure:"KAFKA_COMMANDS_TOPIC"`
	KafkaConsumerGroup string `mapstructure:"KAFKA_CONSUMER_GROUP"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisLockTTL  time.Duration `mapstructure:"REDIS_LOCK_TTL"`

	// SnapshotThreshold of zero or less disables snapshotting.
	SnapshotThreshold     int           `mapstructure:"SNAPSHOT_THRESHOLD"`
	TrackingPollInterval  time.Duration `mapstructure:"TRACKING_POLL_INTERVAL"`
	TrackingBatchSize     int           `mapstructure:"TRACKING_BATCH_SIZE"`
	TrackingGapTimeout    time.Duration `mapstructure:"TRACKING_GAP_TIMEOUT"`
	TrackingGapWindow     int64         `mapstructure:"TRACKING_GAP_WINDOW"`
	DeadlineSweepSchedule string        `mapstructure:"DEADLINE_SWEEP_SCHEDULE"`
	DeadlineRetryDelay    time.Duration `mapstructure:"DEADLINE_RETRY_DELAY"`
	ScheduleMinLead       time.Duration `mapstructure:"SCHEDULE_MIN_LEAD"`
}

var defaults = map[string]any{
	"HTTP_PORT":            8082,
	"LOG_LEVEL":            "info",
	"CORS_ALLOWED_ORIGINS": "*",
	"STORAGE_DRIVER":       StoragePostgres,

	"LEDGER_DB_HOST":     "localhost",
	"LEDGER_DB_PORT":     5432,
	"LEDGER_DB_USER":     "user",
	"LEDGER_DB_PASSWORD": "password",
	"LEDGER_DB_NAME":     "ledger_db",
	"LEDGER_DB_SSLMODE":  "disable",

	"MIGRATIONS_PATH":        "file:///app/migrations",
	"DB_CONNECT_RETRIES":     10,
	"DB_CONNECT_RETRY_DELAY": "5s",

	"KAFKA_ENABLED":        true,
	"KAFKA_BROKER_URL":     "localhost:9092",
	"KAFKA_EVENTS_TOPIC":   "ledger_events",
	"KAFKA_COMMANDS_TOPIC": "ledger_commands",
	"KAFKA_CONSUMER_GROUP": "ledger-command-group",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_LOCK_TTL": "10s",

	"SNAPSHOT_THRESHOLD":      3,
	"TRACKING_POLL_INTERVAL":  "500ms",
	"TRACKING_BATCH_SIZE":     100,
	"TRACKING_GAP_TIMEOUT":    "10s",
	"TRACKING_GAP_WINDOW":     1024,
	"DEADLINE_SWEEP_SCHEDULE": "@every 1s",
	"DEADLINE_RETRY_DELAY":    "5s",
	"SCHEDULE_MIN_LEAD":       "1m",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	for key, value := range defaults {
		viper.SetDefault(key, value)
		_ = viper.BindEnv(key)
	}
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StoragePostgres, c.StorageDriver)
	}
	if c.HTTPPort <= 0 {
		return fmt.Errorf("HTTP_PORT must be positive, got %d", c.HTTPPort)
	}
	if c.TrackingBatchSize <= 0 {
		return fmt.Errorf("TRACKING_BATCH_SIZE must be positive, got %d", c.TrackingBatchSize)
	}
	if c.KafkaEnabled && strings.TrimSpace(c.KafkaBrokerURL) == "" {
		return fmt.Errorf("KAFKA_BROKER_URL is required when KAFKA_ENABLED is set")
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
