// Package region discovers embedded sub-regions — isolated trees the
// primary source cannot see into — and attaches scoped secondary
// sources to them, forwarding their batches into the same collector.
// Attachment failure is not an error condition: the region simply stays
// unmonitored until a later sweep finds it accessible.
package region

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/source"
	"github.com/hazyhaar/domrelay/tree"
)

// Config tunes discovery.
type Config struct {
	// SweepInterval is the discovery tick. One sweep also runs
	// immediately at start.
	SweepInterval time.Duration
	// RetryCooldown spaces re-attempts after a failed attach.
	RetryCooldown time.Duration
	// RootTags are elements treated as monitoring roots.
	RootTags []string
	// Limits bound the discovery traversal.
	Limits tree.WalkLimits

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.RetryCooldown <= 0 {
		c.RetryCooldown = 5 * time.Minute
	}
	if len(c.RootTags) == 0 {
		c.RootTags = []string{"iframe", "object", "embed", "portal", "form", "dialog"}
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor sweeps one tree for region roots and manages their scoped
// sources. All state is owned by the Run goroutine.
type Monitor struct {
	cfg      Config
	clk      clock.Clock
	logger   *slog.Logger
	tr       tree.Tree
	factory  source.Factory
	deliver  func(mutation.Batch)
	rootTags map[string]bool

	attached map[tree.NodeID]source.Source
	failedAt map[tree.NodeID]time.Time
}

// New creates a Monitor forwarding region batches to deliver.
func New(tr tree.Tree, factory source.Factory, deliver func(mutation.Batch), cfg Config) *Monitor {
	cfg.defaults()
	m := &Monitor{
		cfg:      cfg,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		tr:       tr,
		factory:  factory,
		deliver:  deliver,
		rootTags: make(map[string]bool, len(cfg.RootTags)),
		attached: make(map[tree.NodeID]source.Source),
		failedAt: make(map[tree.NodeID]time.Time),
	}
	for _, tag := range cfg.RootTags {
		m.rootTags[tag] = true
	}
	return m
}

// Run sweeps immediately, then on every tick, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	defer m.detachAll()

	m.Sweep(ctx)

	tick := m.clk.Ticker(m.cfg.SweepInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep walks the tree once: attach new accessible regions, drop
// regions whose root left the tree.
func (m *Monitor) Sweep(ctx context.Context) {
	root := m.tr.Root()
	if root == nil {
		return
	}

	live := make(map[tree.NodeID]bool)
	tree.Walk(root, m.cfg.Limits, func(n tree.Node) bool {
		if m.rootTags[n.Tag()] {
			live[n.ID()] = true
			m.tryAttach(ctx, n)
		}
		return true
	})

	for id, src := range m.attached {
		if live[id] {
			continue
		}
		if err := src.Close(); err != nil {
			m.logger.Warn("region: close detached source", "error", err)
		}
		delete(m.attached, id)
		m.logger.Info("region: root left the tree, detached", "node", int64(id))
	}
}

func (m *Monitor) tryAttach(ctx context.Context, n tree.Node) {
	id := n.ID()
	if _, ok := m.attached[id]; ok {
		return
	}
	if at, ok := m.failedAt[id]; ok && m.clk.Now().Sub(at) < m.cfg.RetryCooldown {
		return
	}

	src, err := m.factory.Scoped(n)
	if err != nil {
		// Inaccessible is the expected case for cross-boundary regions:
		// degrade to unmonitored, try again after the cooldown.
		m.failedAt[id] = m.clk.Now()
		m.logger.Debug("region: attach skipped",
			"tag", n.Tag(), "node", int64(id), "reason", err)
		return
	}
	if err := src.Subscribe(ctx, m.deliver); err != nil {
		_ = src.Close()
		m.failedAt[id] = m.clk.Now()
		m.logger.Debug("region: subscribe failed",
			"tag", n.Tag(), "node", int64(id), "error", err)
		return
	}

	delete(m.failedAt, id)
	m.attached[id] = src
	m.logger.Info("region: attached scoped source",
		"tag", n.Tag(), "node", int64(id))
}

// Attached returns the number of live scoped sources. Run-goroutine
// callers only (tests drive Sweep directly).
func (m *Monitor) Attached() int { return len(m.attached) }

func (m *Monitor) detachAll() {
	for id, src := range m.attached {
		_ = src.Close()
		delete(m.attached, id)
	}
}
