package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("port = %d, want 3000", cfg.Port)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %v", cfg.TokenTTL)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("ping period = %v", cfg.PingPeriod)
	}
	if cfg.RelayScope != RelayScopeRoom || cfg.SlowConsumer != SlowConsumerDrop {
		t.Fatalf("unexpected policy %q/%q", cfg.RelayScope, cfg.SlowConsumer)
	}
	if len(cfg.Secret) != 64 {
		t.Fatalf("expected generated secret, got %q", cfg.Secret)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	t.Setenv("HUSH_PORT", "4100")
	t.Setenv("HUSH_RELAY_SCOPE", "any")
	t.Setenv("HUSH_SECRET", "fixed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 4100 || cfg.RelayScope != RelayScopeAny || cfg.Secret != "fixed" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownScope(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	t.Setenv("HUSH_RELAY_SCOPE", "world")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown relay scope")
	}
}
