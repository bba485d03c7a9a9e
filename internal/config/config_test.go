package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GROK_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Grok.StandardModel != "grok-3-mini" {
		t.Errorf("unexpected standard model %q", cfg.Grok.StandardModel)
	}
	if cfg.Grok.AdvancedModel != "grok-4" {
		t.Errorf("unexpected advanced model %q", cfg.Grok.AdvancedModel)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m session TTL, got %v", cfg.Cache.TTL)
	}
	if !cfg.Coordinator.RetryFailedAgents {
		t.Error("expected retries enabled by default")
	}
	if cfg.Coordinator.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.Coordinator.MaxRetries)
	}
	if cfg.Coordinator.RetryBackoffBase != 2*time.Second {
		t.Errorf("expected 2s backoff base, got %v", cfg.Coordinator.RetryBackoffBase)
	}
	if cfg.Coordinator.QualityControl {
		t.Error("quality control should default off")
	}
	if cfg.Coordinator.MaxRefinementAttempts != 2 {
		t.Errorf("expected 2 refinement attempts, got %d", cfg.Coordinator.MaxRefinementAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GROK_API_KEY", "test-key")
	t.Setenv("PORT", "9999")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("SESSION_CACHE_TTL", "10m")
	t.Setenv("RETRY_FAILED_AGENTS", "false")
	t.Setenv("QUALITY_CONTROL", "true")
	t.Setenv("GROK_TIMEOUT", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}

	if cfg.HTTP.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.HTTP.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("expected 10m TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Coordinator.RetryFailedAgents {
		t.Error("expected retries disabled")
	}
	if !cfg.Coordinator.QualityControl {
		t.Error("expected quality control enabled")
	}
	// Bare integers parse as seconds.
	if cfg.Grok.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", cfg.Grok.Timeout)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GROK_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing GROK_API_KEY to fail validation")
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	t.Setenv("GROK_API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid backend to fail validation")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("GROK_API_KEY", "test-key")
	t.Setenv("PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected out-of-range port to fail validation")
	}
}
