package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8090" || cfg.MaxConcurrent != 3 || cfg.GlobalTimeout != 20*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ContentAPITimeout != 8*time.Second || cfg.MediaServerTimeout != 5*time.Second || cfg.LocalCatalogTimeout != 3*time.Second {
		t.Fatalf("unexpected source timeouts: %+v", cfg)
	}
	if cfg.CacheMaxAge != 120*time.Second || cfg.SourcesFile != "config/sources.yaml" {
		t.Fatalf("unexpected cache/sources defaults: %+v", cfg)
	}
	if cfg.Auth.Disabled {
		t.Fatal("auth should be enabled by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SEARCH_MAX_CONCURRENT", "6")
	t.Setenv("SEARCH_GLOBAL_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("AUTH_DISABLED", "yes")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := LoadConfig()
	if cfg.MaxConcurrent != 6 {
		t.Fatalf("expected 6, got %d", cfg.MaxConcurrent)
	}
	if cfg.GlobalTimeout != 20*time.Second {
		t.Fatalf("invalid value should fall back, got %s", cfg.GlobalTimeout)
	}
	if !cfg.Auth.Disabled || cfg.LogFormat != "json" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}
