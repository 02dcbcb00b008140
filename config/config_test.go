package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `global_concurrency: 20
per_host_queue_depth: 256
inventory_ttl_s: 15s
capability_ttl_s: 10m
inventory_refresh_sla_s: 3s
history_per_policy: 50
worker_idle_timeout_s: 60s

hosts:
  ups-1:
    driver: http
    base_url: https://ups-1.example.com
    headers:
      Authorization: Bearer token123
    timeout: 5s
    retries: 3
  ups-2:
    driver: fixture
    fixture: ./fixtures/ups-2.yaml

notifier:
  type: webhook
  url: https://hooks.example.com/orchestrator
  headers:
    Authorization: Bearer hook-token
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GlobalConcurrency != 20 {
		t.Errorf("expected global_concurrency=20, got %d", cfg.GlobalConcurrency)
	}
	if cfg.PerHostQueueDepth != 256 {
		t.Errorf("expected per_host_queue_depth=256, got %d", cfg.PerHostQueueDepth)
	}
	if cfg.InventoryTTL.Duration != 15*time.Second {
		t.Errorf("expected inventory_ttl_s=15s, got %v", cfg.InventoryTTL.Duration)
	}
	if cfg.CapabilityTTL.Duration != 10*time.Minute {
		t.Errorf("expected capability_ttl_s=10m, got %v", cfg.CapabilityTTL.Duration)
	}
	if cfg.HistoryPerPolicy != 50 {
		t.Errorf("expected history_per_policy=50, got %d", cfg.HistoryPerPolicy)
	}

	host, ok := cfg.Hosts["ups-1"]
	if !ok {
		t.Fatal("expected hosts.ups-1 to be present")
	}
	if host.Driver != "http" || host.BaseURL != "https://ups-1.example.com" {
		t.Errorf("unexpected ups-1 host config: %+v", host)
	}
	if host.Timeout.Duration != 5*time.Second {
		t.Errorf("expected ups-1 timeout=5s, got %v", host.Timeout.Duration)
	}
	if host.Retries == nil || *host.Retries != 3 {
		t.Error("expected ups-1 retries=3")
	}

	fixtureHost, ok := cfg.Hosts["ups-2"]
	if !ok || fixtureHost.Driver != "fixture" || fixtureHost.Fixture != "./fixtures/ups-2.yaml" {
		t.Errorf("unexpected ups-2 host config: %+v", fixtureHost)
	}

	if cfg.Notifier.Type != "webhook" || cfg.Notifier.URL != "https://hooks.example.com/orchestrator" {
		t.Errorf("unexpected notifier config: %+v", cfg.Notifier)
	}
	if cfg.Notifier.Headers["Authorization"] != "Bearer hook-token" {
		t.Error("expected notifier Authorization header")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GlobalConcurrency != 0 {
		t.Errorf("expected zero-value before ApplyDefaults, got %d", cfg.GlobalConcurrency)
	}
	cfg.ApplyDefaults()
	if cfg.GlobalConcurrency != 10 {
		t.Errorf("expected default global_concurrency=10, got %d", cfg.GlobalConcurrency)
	}
	if cfg.PerHostQueueDepth != 128 {
		t.Errorf("expected default per_host_queue_depth=128, got %d", cfg.PerHostQueueDepth)
	}
	if cfg.InventoryTTL.Duration != 30*time.Second {
		t.Errorf("expected default inventory_ttl_s=30s, got %v", cfg.InventoryTTL.Duration)
	}
	if cfg.WorkerIdleTimeout.Duration != 120*time.Second {
		t.Errorf("expected default worker_idle_timeout_s=120s, got %v", cfg.WorkerIdleTimeout.Duration)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/orchestrator.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_NOTIFIER_URL", "https://expanded.example.com/hook")

	yaml := `notifier:
  type: webhook
  url: ${TEST_NOTIFIER_URL}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notifier.URL != "https://expanded.example.com/hook" {
		t.Errorf("expected expanded URL, got %q", cfg.Notifier.URL)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `global_concurrency: 5
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `hosts:
  ups-1:
    driver: http
    unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
}

func TestDuration_UnmarshalYAML_BareSeconds(t *testing.T) {
	yaml := `global_concurrency: 5
inventory_ttl_s: 45
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.InventoryTTL.Duration != 45*time.Second {
		t.Errorf("expected 45s from bare integer, got %v", cfg.InventoryTTL.Duration)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{GlobalConcurrency: 99}
	cfg.ApplyDefaults()
	if cfg.GlobalConcurrency != 99 {
		t.Errorf("expected explicit value preserved, got %d", cfg.GlobalConcurrency)
	}
	if cfg.PerHostQueueDepth != 128 {
		t.Errorf("expected default fill-in for unset field, got %d", cfg.PerHostQueueDepth)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
