package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: 127.0.0.1
  port: 9090
storage:
  backend: tree
  db_path: /var/lib/aphorist/db
  cache_size: 64MB
sweep:
  enabled: true
  timeout: 45s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
	if cfg.Storage.CacheSize.Int64() != 64*1000*1000 {
		t.Fatalf("cache size = %d", cfg.Storage.CacheSize.Int64())
	}
	if cfg.Sweep.Timeout.Duration() != 45*time.Second {
		t.Fatalf("sweep timeout = %v", cfg.Sweep.Timeout.Duration())
	}
	if cfg.Sweep.Cron == "" {
		t.Fatalf("default sweep cron not applied")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APHORIST_ADDR", "10.0.0.5:7070")
	t.Setenv("APHORIST_BACKEND", "redis")
	t.Setenv("APHORIST_REDIS_ADDR", "10.0.0.9:6379")
	t.Setenv("APHORIST_API_KEYS", "k1, k2,")
	t.Setenv("APHORIST_RATE_RPS", "12.5")

	cfg := &Config{}
	if !ApplyEnvOverrides(cfg) {
		t.Fatalf("env overrides not detected")
	}
	if cfg.Addr() != "10.0.0.5:7070" {
		t.Fatalf("Addr = %q", cfg.Addr())
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.Redis.Addr != "10.0.0.9:6379" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if len(cfg.Security.APIKeys) != 2 || cfg.Security.APIKeys[1] != "k2" {
		t.Fatalf("api keys: %v", cfg.Security.APIKeys)
	}
	if cfg.Security.RateLimit.RPS != 12.5 {
		t.Fatalf("rps: %v", cfg.Security.RateLimit.RPS)
	}
}

func TestDurationNumericSeconds(t *testing.T) {
	var d Duration
	var node yaml.Node
	node.SetString("2.5")
	if err := d.UnmarshalYAML(&node); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration() != 2500*time.Millisecond {
		t.Fatalf("duration = %v", d.Duration())
	}
}
