package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Logging.Output = %q, want stdout", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Telemetry.Endpoint = %q, want localhost:4317", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Telemetry.SampleRate = %v, want 1.0", cfg.Telemetry.SampleRate)
	}
	if cfg.Store.Dir != "/nix/store" {
		t.Errorf("Store.Dir = %q, want /nix/store", cfg.Store.Dir)
	}
	if cfg.Backends.GHA.KeyPrefix != "magic-nix-cache" {
		t.Errorf("GHA.KeyPrefix = %q, want magic-nix-cache", cfg.Backends.GHA.KeyPrefix)
	}
	if cfg.Backends.S3.Region != "us-east-1" {
		t.Errorf("S3.Region = %q, want us-east-1", cfg.Backends.S3.Region)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Backends.S3.QueueSize = 16
	cfg.Backends.GHA.Workers = 1

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG (normalized, not replaced)", cfg.Logging.Level)
	}
	if cfg.Backends.S3.QueueSize != 16 {
		t.Errorf("S3.QueueSize = %d, want explicit 16", cfg.Backends.S3.QueueSize)
	}
	if cfg.Backends.GHA.Workers != 1 {
		t.Errorf("GHA.Workers = %d, want explicit 1", cfg.Backends.GHA.Workers)
	}
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("disabled metrics got port %d, want 0", cfg.Metrics.Port)
	}

	cfg = &Config{}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("enabled metrics port = %d, want 9090", cfg.Metrics.Port)
	}
}
