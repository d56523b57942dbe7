package domrelay

import (
	"github.com/hazyhaar/domrelay/internal/config"
	"github.com/hazyhaar/domrelay/internal/engine"
	"github.com/hazyhaar/domrelay/internal/metrics"
)

// Registration describes one watcher: predicate, priority tier,
// handler, retry policy.
type Registration = engine.Registration

// Handler receives a matched node.
type Handler = engine.Handler

// RetryPolicy controls re-invocation of a failing handler.
type RetryPolicy = engine.RetryPolicy

// Priority is the watcher urgency tier.
type Priority = engine.Priority

// Priority tiers, in execution order.
const (
	PriorityImmediate = engine.PriorityImmediate
	PriorityHigh      = engine.PriorityHigh
	PriorityNormal    = engine.PriorityNormal
	PriorityLow       = engine.PriorityLow
)

// ErrDestroyed is returned by operations on a destroyed relay.
var ErrDestroyed = engine.ErrDestroyed

// Metrics is a point-in-time counter snapshot.
type Metrics = metrics.Snapshot

// Config is the top-level domrelay configuration. Re-exported from
// internal.
type Config = config.Config

// EngineConfig tunes the collect/drain/dispatch core.
type EngineConfig = config.EngineConfig

// ReconcileConfig tunes the rescan backstops.
type ReconcileConfig = config.ReconcileConfig

// RegionConfig tunes embedded-region discovery.
type RegionConfig = config.RegionConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every field defaulted.
func DefaultConfig() *Config {
	return config.Default()
}
