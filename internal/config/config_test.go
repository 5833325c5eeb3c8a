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
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want 256", cfg.QueueSize)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", cfg.CacheTTL)
	}
	if cfg.ParseBudget != 30*time.Second {
		t.Errorf("ParseBudget = %v, want 30s", cfg.ParseBudget)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LITSIFT_WORKERS", "8")
	t.Setenv("LITSIFT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadRejectsBadSizing(t *testing.T) {
	t.Setenv("LITSIFT_WORKERS", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxUploadBytes("pdf") != 52428800 {
		t.Errorf("pdf cap = %d", cfg.MaxUploadBytes("pdf"))
	}
	if cfg.MaxUploadBytes("ris") != 10485760 {
		t.Errorf("ris cap = %d", cfg.MaxUploadBytes("ris"))
	}
	if cfg.MaxUploadBytes("exe") != 0 {
		t.Error("unknown format must have no cap")
	}
}
