package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resolver.SnapshotPath != "/sys/kernel/debug/binder/transactions" {
		t.Errorf("SnapshotPath = %q", cfg.Resolver.SnapshotPath)
	}
	if cfg.Resolver.MaxIterations != 10000 {
		t.Errorf("MaxIterations = %d", cfg.Resolver.MaxIterations)
	}
	if cfg.Redis.Enabled || cfg.Postgres.Enabled || cfg.Kafka.Enabled {
		t.Error("optional backends should default to disabled")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindertrack.yaml")
	yamlDoc := `
resolver:
  snapshotPath: /data/captured/transactions
  maxIterations: 50
  timeout: 250ms
redis:
  enabled: true
  cacheTTL: 1s
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BT_RESOLVER_MAX_ITERATIONS", "75")
	t.Setenv("BT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resolver.SnapshotPath != "/data/captured/transactions" {
		t.Errorf("SnapshotPath = %q", cfg.Resolver.SnapshotPath)
	}
	if cfg.Resolver.MaxIterations != 75 {
		t.Errorf("MaxIterations = %d, want env override 75", cfg.Resolver.MaxIterations)
	}
	if cfg.Resolver.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Resolver.Timeout)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != time.Second {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	// Untouched sections keep defaults.
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("resolver:\n  maxIterations: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
