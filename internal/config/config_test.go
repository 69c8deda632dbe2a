package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("unexpected HTTPAddr: %s", cfg.HTTPAddr)
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("unexpected SweepInterval: %s", cfg.SweepInterval)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("SWEEP_INTERVAL", "15m")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Fatalf("unexpected SweepInterval: %s", cfg.SweepInterval)
	}
}

func TestLoad_BadInterval(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	if cfg := Load(); cfg.SweepInterval != time.Hour {
		t.Fatalf("bad interval should fall back to default, got %s", cfg.SweepInterval)
	}
}
