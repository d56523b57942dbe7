// Package config handles domrelay configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level domrelay configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Regions   RegionConfig    `yaml:"regions"`
}

// EngineConfig tunes the collect/drain/dispatch core.
type EngineConfig struct {
	// ChunkSize is the number of nodes dispatched between budget checks.
	ChunkSize int `yaml:"chunk_size"`
	// Budget is the per-pass time budget before the drain yields.
	Budget time.Duration `yaml:"budget"`
	// HighDelay, NormalDelay, LowDelay schedule the non-immediate tiers
	// relative to immediate-tier completion.
	HighDelay   time.Duration `yaml:"high_delay"`
	NormalDelay time.Duration `yaml:"normal_delay"`
	LowDelay    time.Duration `yaml:"low_delay"`
	// RetryBackoff is the base delay for handler retries; attempt n
	// waits RetryBackoff << (n-1).
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// ProcessedCap bounds the already-dispatched tracking table.
	// Eviction only ever causes a redundant re-dispatch.
	ProcessedCap int `yaml:"processed_cap"`
	// MaxTraversalNodes and MaxTraversalDepth bound subtree expansion.
	MaxTraversalNodes int `yaml:"max_traversal_nodes"`
	MaxTraversalDepth int `yaml:"max_traversal_depth"`
}

// ReconcileConfig tunes the rescan backstops.
type ReconcileConfig struct {
	// QuickInterval is the tick for the marker rescan.
	QuickInterval time.Duration `yaml:"quick_interval"`
	// QuickGate is the minimum spacing between effective quick runs.
	QuickGate time.Duration `yaml:"quick_gate"`
	// DeepInterval is the tick for the full-traversal rescan.
	DeepInterval time.Duration `yaml:"deep_interval"`
	// Markers are selectors for frequently-dynamic containers checked
	// by the quick rescan.
	Markers []string `yaml:"markers"`
}

// RegionConfig tunes embedded-region discovery.
type RegionConfig struct {
	// SweepInterval is the discovery tick.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// RetryCooldown spaces re-attempts after a failed attach.
	RetryCooldown time.Duration `yaml:"retry_cooldown"`
	// RootTags are elements treated as monitoring roots.
	RootTags []string `yaml:"root_tags"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields in place.
func (c *Config) ApplyDefaults() {
	if c.Engine.ChunkSize <= 0 {
		c.Engine.ChunkSize = 25
	}
	if c.Engine.Budget <= 0 {
		c.Engine.Budget = 8 * time.Millisecond
	}
	// HighDelay default is 0 — immediate follow-up on the next turn.
	if c.Engine.NormalDelay <= 0 {
		c.Engine.NormalDelay = 10 * time.Millisecond
	}
	if c.Engine.LowDelay <= 0 {
		c.Engine.LowDelay = 100 * time.Millisecond
	}
	if c.Engine.RetryBackoff <= 0 {
		c.Engine.RetryBackoff = 500 * time.Millisecond
	}
	if c.Engine.ProcessedCap <= 0 {
		c.Engine.ProcessedCap = 50000
	}
	if c.Engine.MaxTraversalNodes <= 0 {
		c.Engine.MaxTraversalNodes = 10000
	}
	if c.Engine.MaxTraversalDepth <= 0 {
		c.Engine.MaxTraversalDepth = 100
	}

	if c.Reconcile.QuickInterval <= 0 {
		c.Reconcile.QuickInterval = 5 * time.Second
	}
	if c.Reconcile.QuickGate <= 0 {
		c.Reconcile.QuickGate = 10 * time.Second
	}
	if c.Reconcile.DeepInterval <= 0 {
		c.Reconcile.DeepInterval = 5 * time.Minute
	}
	if len(c.Reconcile.Markers) == 0 {
		c.Reconcile.Markers = []string{"[aria-live]", "[data-volatile]"}
	}

	if c.Regions.SweepInterval <= 0 {
		c.Regions.SweepInterval = 30 * time.Second
	}
	if c.Regions.RetryCooldown <= 0 {
		c.Regions.RetryCooldown = 5 * time.Minute
	}
	if len(c.Regions.RootTags) == 0 {
		c.Regions.RootTags = []string{"iframe", "object", "embed", "portal", "form", "dialog"}
	}
}
