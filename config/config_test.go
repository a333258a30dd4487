package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EOSAPIBase != "https://api.epicgames.dev" {
		t.Errorf("EOSAPIBase = %q", cfg.EOSAPIBase)
	}
	if cfg.EOSCluster != "PVPCrossplay" {
		t.Errorf("EOSCluster = %q", cfg.EOSCluster)
	}
	if cfg.PopulationInterval != time.Minute {
		t.Errorf("PopulationInterval = %v", cfg.PopulationInterval)
	}
	if cfg.RosterInterval != 15*time.Second {
		t.Errorf("RosterInterval = %v", cfg.RosterInterval)
	}
	if cfg.SweepBatchSize != 50 {
		t.Errorf("SweepBatchSize = %d", cfg.SweepBatchSize)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONITOR_POPULATION_INTERVAL", "30s")
	t.Setenv("SWEEP_BATCH_SIZE", "20")
	t.Setenv("DB_DSN", "postgres://x:y@db:5432/z")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PopulationInterval != 30*time.Second {
		t.Errorf("PopulationInterval = %v, want 30s", cfg.PopulationInterval)
	}
	if cfg.SweepBatchSize != 20 {
		t.Errorf("SweepBatchSize = %d, want 20", cfg.SweepBatchSize)
	}
	if cfg.DBDsn != "postgres://x:y@db:5432/z" {
		t.Errorf("DBDsn = %q", cfg.DBDsn)
	}
}

func TestValidateBotReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("expected error with empty token")
	}
	cfg.BotToken = "tok"
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateEOSReady(t *testing.T) {
	cfg := &Config{EOSDeploymentID: "dep", EOSClientID: "id"}
	if err := cfg.ValidateEOSReady(); err == nil {
		t.Error("expected error with missing secret")
	}
	cfg.EOSClientSecret = "secret"
	if err := cfg.ValidateEOSReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
