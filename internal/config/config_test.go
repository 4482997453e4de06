package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "")
	t.Setenv("GROQ_API_KEY", "")
	cfg := Load()

	if cfg.SchedulerInterval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.SchedulerInterval)
	}
	if cfg.SchedulerBatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", cfg.SchedulerBatchSize)
	}
	if cfg.ProviderMaxRetries != 3 || cfg.ProviderBackoffInitial != time.Second {
		t.Fatalf("unexpected provider retry defaults: %d %s", cfg.ProviderMaxRetries, cfg.ProviderBackoffInitial)
	}
	if cfg.GroqAPIKey != "" {
		t.Fatalf("expected empty groq key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "15s")
	t.Setenv("SCHEDULER_BATCH_SIZE", "25")
	t.Setenv("PUBLISHER_STUB", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	cfg := Load()

	if cfg.SchedulerInterval != 15*time.Second || cfg.SchedulerBatchSize != 25 {
		t.Fatalf("overrides not applied: %s %d", cfg.SchedulerInterval, cfg.SchedulerBatchSize)
	}
	if !cfg.PublisherStub {
		t.Fatalf("expected stub publisher")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PROVIDER_MAX_RETRIES", "three")
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	cfg := Load()
	if cfg.ProviderMaxRetries != 3 || cfg.ProviderTimeout != 30*time.Second {
		t.Fatalf("malformed values should fall back to defaults: %d %s", cfg.ProviderMaxRetries, cfg.ProviderTimeout)
	}
}
