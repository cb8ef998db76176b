package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HTTPPort != 8082 || cfg.StorageDriver != StoragePostgres || cfg.SnapshotThreshold != 3 || cfg.TrackingGapWindow != 1024 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ScheduleMinLead != time.Minute || cfg.TrackingPollInterval != 500*time.Millisecond || cfg.RedisLockTTL != 10*time.Second {
		t.Fatalf("unexpected duration defaults: %+v", cfg)
	}
	if cfg.DeadlineSweepSchedule != "@every 1s" || cfg.KafkaCommandsTopic != "ledger_commands" {
		t.Fatalf("unexpected string defaults: %+v", cfg)
	}
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SNAPSHOT_THRESHOLD", "0")
	t.Setenv("KAFKA_BROKER_URL", "kafka-1:9092, kafka-2:9092")
	t.Setenv("TRACKING_GAP_TIMEOUT", "250ms")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("LEDGER_DB_HOST", "db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != StorageMemory || cfg.SnapshotThreshold != 0 || cfg.KafkaEnabled {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if cfg.TrackingGapTimeout != 250*time.Millisecond {
		t.Fatalf("expected gap timeout 250ms, got %s", cfg.TrackingGapTimeout)
	}
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) != 2 || brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if got := cfg.GetDBConnectionString(); !strings.Contains(got, "host=db ") || !strings.Contains(got, "sslmode=disable") {
		t.Fatalf("unexpected connection string %q", got)
	}
	if got := cfg.GetDBMigrationConnectionString(); got != "postgres://user:password@db:5432/ledger_db?sslmode=disable" {
		t.Fatalf("unexpected migration connection string %q", got)
	}
}

func TestLoadConfig_RejectsUnknownStorageDriver(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "STORAGE_DRIVER") {
		t.Fatalf("expected a STORAGE_DRIVER error, got %v", err)
	}
}
