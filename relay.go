// Package domrelay watches a live, externally-mutated content tree and
// delivers every structural or attribute change to registered watchers.
//
// Change sources report overlapping raw notifications; the relay
// deduplicates them into one unit of work per node per coalescing
// cycle, drains the pending set in time-budgeted chunks, and executes
// matched handlers in strict priority-tier order. Periodic quick and
// deep rescans plus per-region secondary sources cover the blind spots
// a primary source cannot see (embedded documents, uninstrumented tree
// edits). The relay detects that something changed under a node and
// routes that fact; what watchers do with the node is their business.
package domrelay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/domrelay/internal/config"
	"github.com/hazyhaar/domrelay/internal/engine"
	"github.com/hazyhaar/domrelay/internal/metrics"
	"github.com/hazyhaar/domrelay/internal/reconcile"
	"github.com/hazyhaar/domrelay/internal/region"
	"github.com/hazyhaar/domrelay/source"
	"github.com/hazyhaar/domrelay/tree"
)

// Relay is the top-level orchestrator: one observed tree, one primary
// source, any number of watchers. Create with New, wire with Start,
// tear down with Destroy.
type Relay struct {
	cfg     *config.Config
	logger  *slog.Logger
	clk     clock.Clock
	met     *metrics.Set
	tr      tree.Tree
	primary source.Source
	factory source.Factory

	eng *engine.Engine
	rec *reconcile.Reconciler
	mon *region.Monitor

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	once    sync.Once
	wg      sync.WaitGroup
}

// Option customises a Relay.
type Option func(*Relay)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithClock substitutes the clock driving budgets, tier delays, retry
// backoff and rescan tickers. Tests pass a mock.
func WithClock(c clock.Clock) Option {
	return func(r *Relay) { r.clk = c }
}

// WithRegionFactory enables the embedded-region monitor.
func WithRegionFactory(f source.Factory) Option {
	return func(r *Relay) { r.factory = f }
}

// WithPrometheus registers the relay's counters on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(r *Relay) { r.met = metrics.New(reg) }
}

// New creates a Relay observing tr with primary as the main change
// source. A nil cfg takes defaults.
func New(tr tree.Tree, primary source.Source, cfg *config.Config, opts ...Option) (*Relay, error) {
	if tr == nil {
		return nil, fmt.Errorf("domrelay: tree is required")
	}
	if primary == nil {
		return nil, fmt.Errorf("domrelay: primary source is required")
	}
	if cfg == nil {
		cfg = config.Default()
	} else {
		cfg.ApplyDefaults()
	}

	r := &Relay{
		cfg:     cfg,
		logger:  slog.Default(),
		clk:     clock.New(),
		tr:      tr,
		primary: primary,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.met == nil {
		r.met = metrics.New(nil)
	}

	limits := tree.WalkLimits{
		MaxNodes: cfg.Engine.MaxTraversalNodes,
		MaxDepth: cfg.Engine.MaxTraversalDepth,
	}

	eng, err := engine.New(engine.Config{
		ChunkSize:    cfg.Engine.ChunkSize,
		Budget:       cfg.Engine.Budget,
		HighDelay:    cfg.Engine.HighDelay,
		NormalDelay:  cfg.Engine.NormalDelay,
		LowDelay:     cfg.Engine.LowDelay,
		RetryBackoff: cfg.Engine.RetryBackoff,
		ProcessedCap: cfg.Engine.ProcessedCap,
		Limits:       limits,
		Tree:         tr,
		Clock:        r.clk,
		Logger:       r.logger,
		Metrics:      r.met,
	})
	if err != nil {
		return nil, err
	}
	r.eng = eng

	rec, err := reconcile.New(tr, eng, reconcile.Config{
		QuickInterval: cfg.Reconcile.QuickInterval,
		QuickGate:     cfg.Reconcile.QuickGate,
		DeepInterval:  cfg.Reconcile.DeepInterval,
		Markers:       cfg.Reconcile.Markers,
		Limits:        limits,
		Clock:         r.clk,
		Logger:        r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.rec = rec

	if r.factory != nil {
		r.mon = region.New(tr, r.factory, eng.Collect, region.Config{
			SweepInterval: cfg.Regions.SweepInterval,
			RetryCooldown: cfg.Regions.RetryCooldown,
			RootTags:      cfg.Regions.RootTags,
			Limits:        limits,
			Clock:         r.clk,
			Logger:        r.logger,
		})
	}

	return r, nil
}

// Start wires everything up: the engine loop, the primary subscription,
// the initial full scan (so watchers registered afterwards see
// pre-existing nodes synchronously), then the reconciler and the region
// monitor. Returns once the initial scan has completed.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("domrelay: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.eng.Run(ctx)
	}()

	if err := r.primary.Subscribe(ctx, r.eng.Collect); err != nil {
		cancel()
		return fmt.Errorf("domrelay: subscribe primary source: %w", err)
	}

	if err := r.eng.InitialScan(); err != nil {
		cancel()
		return fmt.Errorf("domrelay: initial scan: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.rec.Run(ctx)
	}()

	if r.mon != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.mon.Run(ctx)
		}()
	}

	r.logger.Info("domrelay: started")
	return nil
}

// Register adds a watcher. After Start, a selector-carrying watcher is
// caught up on pre-existing matches before Register returns. Must not
// be called from inside a handler.
func (r *Relay) Register(reg Registration) (string, error) {
	return r.eng.Register(reg)
}

// Unregister removes a watcher. In-flight dispatches still complete.
func (r *Relay) Unregister(id string) {
	r.eng.Unregister(id)
}

// Flush forces a synchronous drain of all pending work.
func (r *Relay) Flush() {
	r.eng.Flush()
}

// Metrics returns a read-only counter snapshot.
func (r *Relay) Metrics() Metrics {
	return r.eng.Metrics()
}

// Destroy tears the relay down: stops the loop and every timer, closes
// the primary and all region sources. Idempotent; a mutation delivered
// after Destroy is dropped without any handler invocation.
func (r *Relay) Destroy() {
	r.once.Do(func() {
		r.mu.Lock()
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
			<-r.eng.Done()
		}
		if err := r.primary.Close(); err != nil {
			r.logger.Warn("domrelay: close primary source", "error", err)
		}
		r.wg.Wait()
		r.logger.Info("domrelay: destroyed")
	})
}
