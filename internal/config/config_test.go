package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DB_TYPE", "DATA_DIR", "CACHE_TTL_MINUTES", "MATCH_CACHE_TTL_MINUTES",
		"REFRESH_COOLDOWN_SECONDS", "WIDGET_URL", "UPSTREAM_API_BASE",
		"UPSTREAM_ORIGIN", "SCRAPER_HEADLESS", "SCRAPE_GROUP_CONCURRENCY",
		"HTTP_PORT", "APP_TITLE", "HOST_IDENTIFIER",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.DBType != DBTypeFile {
		t.Fatalf("default DBType = %q, want %q", cfg.DBType, DBTypeFile)
	}
	if cfg.CacheTTL != 10080*time.Minute {
		t.Fatalf("default CacheTTL = %s, want 10080m", cfg.CacheTTL)
	}
	if cfg.RefreshCooldown != 300*time.Second {
		t.Fatalf("default RefreshCooldown = %s, want 300s", cfg.RefreshCooldown)
	}
	if cfg.ScrapeGroupConcurrency != 6 {
		t.Fatalf("default ScrapeGroupConcurrency = %d, want 6", cfg.ScrapeGroupConcurrency)
	}
	if cfg.HTTPPort != "8000" {
		t.Fatalf("default HTTPPort = %q, want 8000", cfg.HTTPPort)
	}
}

func TestLoad_RejectsInvalidDBType(t *testing.T) {
	t.Setenv("DB_TYPE", "not-a-real-backend")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for unknown DB_TYPE")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_TYPE", "rowstore")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DBType != DBTypeRowStore {
		t.Fatalf("DBType = %q, want rowstore", cfg.DBType)
	}
	if cfg.HTTPPort != "9090" {
		t.Fatalf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
}
