package config

import (
	"fmt"
	"time"
)

// Config represents an orchestrator.yaml configuration file: the
// configuration surface enumerated in spec.md §6, plus the host/driver and
// notifier wiring needed to run a daemon.
type Config struct {
	GlobalConcurrency     int      `yaml:"global_concurrency"`
	PerHostQueueDepth     int      `yaml:"per_host_queue_depth"`
	InventoryTTL          Duration `yaml:"inventory_ttl_s"`
	CapabilityTTL         Duration `yaml:"capability_ttl_s"`
	InventoryRefreshSLA   Duration `yaml:"inventory_refresh_sla_s"`
	HistoryPerPolicy      int      `yaml:"history_per_policy"`
	WorkerIdleTimeout     Duration `yaml:"worker_idle_timeout_s"`

	Hosts    map[string]HostConfig `yaml:"hosts"`
	Notifier NotifierConfig        `yaml:"notifier"`
}

// HostConfig describes how to reach a managed host's integration driver.
type HostConfig struct {
	Driver  string            `yaml:"driver"` // "http" or "fixture"
	BaseURL string            `yaml:"base_url,omitempty"`
	Fixture string            `yaml:"fixture,omitempty"` // path to fixture YAML
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// NotifierConfig holds outbound execution-summary publisher defaults.
type NotifierConfig struct {
	Type    string            `yaml:"type"` // "webhook" or "redis"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string or bare-integer-second
// parsing (e.g. "10s", "5m", or 30 meaning 30 seconds), matching spec.md
// §6's "_s"-suffixed seconds fields while still accepting human-readable
// duration strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration from either a duration string
// ("10s", "5m30s") or a bare number of seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	case int:
		d.Duration = time.Duration(v) * time.Second
	default:
		return fmt.Errorf("invalid duration value %v (type %T)", raw, raw)
	}
	return nil
}

// Defaults returns the spec.md §6-documented defaults.
func Defaults() Config {
	return Config{
		GlobalConcurrency:   10,
		PerHostQueueDepth:   128,
		InventoryTTL:        Duration{30 * time.Second},
		CapabilityTTL:       Duration{5 * time.Minute},
		InventoryRefreshSLA: Duration{5 * time.Second},
		HistoryPerPolicy:    30,
		WorkerIdleTimeout:   Duration{120 * time.Second},
	}
}

// ApplyDefaults fills any zero-valued field with the documented default.
// CLI flags (when wired by a caller) always override config-file values;
// this only fills in what neither the file nor flags set.
func (c *Config) ApplyDefaults() {
	d := Defaults()
	if c.GlobalConcurrency == 0 {
		c.GlobalConcurrency = d.GlobalConcurrency
	}
	if c.PerHostQueueDepth == 0 {
		c.PerHostQueueDepth = d.PerHostQueueDepth
	}
	if c.InventoryTTL.Duration == 0 {
		c.InventoryTTL = d.InventoryTTL
	}
	if c.CapabilityTTL.Duration == 0 {
		c.CapabilityTTL = d.CapabilityTTL
	}
	if c.InventoryRefreshSLA.Duration == 0 {
		c.InventoryRefreshSLA = d.InventoryRefreshSLA
	}
	if c.HistoryPerPolicy == 0 {
		c.HistoryPerPolicy = d.HistoryPerPolicy
	}
	if c.WorkerIdleTimeout.Duration == 0 {
		c.WorkerIdleTimeout = d.WorkerIdleTimeout
	}
}
