package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STUDYGUIDE_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.TokenBudgetUSD != 0.25 {
		t.Errorf("expected budget 0.25, got %v", cfg.TokenBudgetUSD)
	}
	if cfg.SiteDir != "site" || cfg.TemplateDir != "templates" || cfg.AssetDir != "assets" {
		t.Errorf("unexpected output dirs: %q %q %q", cfg.SiteDir, cfg.TemplateDir, cfg.AssetDir)
	}
	if cfg.CacheType != "memory" || cfg.CacheNamespace != "perplexity_api" {
		t.Errorf("unexpected cache settings: %q %q", cfg.CacheType, cfg.CacheNamespace)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("expected cache ttl 1h, got %v", cfg.CacheTTL)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.MaxRetries)
	}
	if !cfg.PDFFallbackPdftotext {
		t.Error("expected pdftotext fallback enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STUDYGUIDE_CONFIG", "")
	t.Setenv("PORT", "9999")
	t.Setenv("CACHE_TYPE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "15m")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("TOKEN_BUDGET_USD", "1.5")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %q", cfg.Port)
	}
	if cfg.CacheType != "redis" {
		t.Errorf("expected lowercased cache type, got %q", cfg.CacheType)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("expected 15m, got %v", cfg.CacheTTL)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected invalid worker count to fall back to 2, got %d", cfg.WorkerCount)
	}
	if cfg.TokenBudgetUSD != 1.5 {
		t.Errorf("expected budget 1.5, got %v", cfg.TokenBudgetUSD)
	}
	if !cfg.TracingEnabled {
		t.Error("expected tracing enabled")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studyguide.yaml")
	content := "site_dir: public\npplx_model: sonar-pro\nmax_parse_attempts: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUDYGUIDE_CONFIG", path)
	t.Setenv("PPLX_MODEL", "sonar-reasoning")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SiteDir != "public" {
		t.Errorf("expected site dir from file, got %q", cfg.SiteDir)
	}
	if cfg.MaxParseAttempts != 4 {
		t.Errorf("expected 4 parse attempts, got %d", cfg.MaxParseAttempts)
	}
	if cfg.PplxModel != "sonar-reasoning" {
		t.Errorf("expected env to override file, got %q", cfg.PplxModel)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("STUDYGUIDE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StudyguideAPIKey: "k",
		PplxAPIKey:       "p",
		CacheType:        "memory",
		DiagramFormat:    "png",
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing server key", func(c *Config) { c.StudyguideAPIKey = "" }, true},
		{"missing pplx key", func(c *Config) { c.PplxAPIKey = "" }, true},
		{"redis without url", func(c *Config) { c.CacheType = "redis" }, true},
		{"redis with url", func(c *Config) { c.CacheType = "redis"; c.RedisURL = "redis://x" }, false},
		{"unknown cache", func(c *Config) { c.CacheType = "memcached" }, true},
		{"dot diagrams", func(c *Config) { c.DiagramFormat = "dot" }, false},
		{"svg diagrams", func(c *Config) { c.DiagramFormat = "svg" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
