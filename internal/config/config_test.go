package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != StoreFile || cfg.Workers != 8 || cfg.LookupTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CacheExpiry != 7*24*time.Hour {
		t.Fatalf("unexpected expiry %s", cfg.CacheExpiry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greenlink.yaml")
	content := `
store:
  backend: redis
  redis_url: redis://localhost:6379/0
  expiry: 48h
classifier:
  base_url: http://localhost:9999/greencheck/
  timeout: 3s
  workers: 4
  rate: 2.5
server:
  listen: 127.0.0.1:9000
scan:
  max_file_bytes: 1024
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GREENLINK_WORKERS", "16")
	t.Setenv("GREENLINK_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != StoreRedis || cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("store settings not loaded: %+v", cfg)
	}
	if cfg.CacheExpiry != 48*time.Hour || cfg.RatePerSecond != 2.5 || cfg.MaxFileBytes != 1024 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Workers != 16 || cfg.LookupTimeout != 5*time.Second {
		t.Fatalf("env must override file: workers=%d timeout=%s", cfg.Workers, cfg.LookupTimeout)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("store: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("GREENLINK_TIMEOUT", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "GREENLINK_TIMEOUT") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.Store = "s3" }, "unknown store"},
		{"redis without url", func(c *Config) { c.Store = StoreRedis }, "redis url"},
		{"zero timeout", func(c *Config) { c.LookupTimeout = 0 }, "timeout must be positive"},
		{"too many workers", func(c *Config) { c.Workers = 100000 }, "workers must be between"},
		{"negative rate", func(c *Config) { c.RatePerSecond = -1 }, "rate must not be negative"},
		{"tiny expiry", func(c *Config) { c.CacheExpiry = time.Second }, "cache expiry too small"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
