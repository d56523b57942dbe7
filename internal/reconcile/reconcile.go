// Package reconcile implements the rescan backstops: a quick pass over
// known-dynamic markers and a deep full-traversal pass. Sources are
// assumed reliable for ordinary structural mutations, but blind-spot
// paths exist (embedded documents before a monitor attaches, tree edits
// through uninstrumented code). Reconciliation trades latency for
// completeness — it re-derives pending work independently of every
// source and must never be required for within-one-cycle guarantees,
// only for eventual delivery.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/domrelay/tree"
)

// Intake is the engine surface the reconciler feeds.
type Intake interface {
	// Enqueue adds rescan-derived nodes to the pending set and
	// schedules a drain.
	Enqueue(nodes []tree.Node)
	// Seen reports whether a node was already dispatched.
	Seen(id tree.NodeID) bool
}

// Config tunes the reconciler.
type Config struct {
	// QuickInterval is the marker-scan tick.
	QuickInterval time.Duration
	// QuickGate is the minimum spacing between effective quick runs.
	QuickGate time.Duration
	// DeepInterval is the full-traversal tick.
	DeepInterval time.Duration
	// Markers select frequently-dynamic containers for the quick pass.
	Markers []string
	// Limits bound the deep traversal.
	Limits tree.WalkLimits

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.QuickInterval <= 0 {
		c.QuickInterval = 5 * time.Second
	}
	if c.QuickGate <= 0 {
		c.QuickGate = 10 * time.Second
	}
	if c.DeepInterval <= 0 {
		c.DeepInterval = 5 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reconciler runs the two rescan cadences against one tree.
type Reconciler struct {
	cfg     Config
	clk     clock.Clock
	logger  *slog.Logger
	tr      tree.Tree
	intake  Intake
	markers []*tree.Selector

	lastQuick time.Time
	// deferred carries invisible unseen nodes from one deep pass to the
	// next: deferred, not dropped.
	deferred []tree.Node
}

// New creates a Reconciler. Marker selectors are parsed up front.
func New(tr tree.Tree, intake Intake, cfg Config) (*Reconciler, error) {
	cfg.defaults()
	r := &Reconciler{
		cfg:    cfg,
		clk:    cfg.Clock,
		logger: cfg.Logger,
		tr:     tr,
		intake: intake,
	}
	for _, m := range cfg.Markers {
		sel, err := tree.ParseSelector(m)
		if err != nil {
			return nil, err
		}
		r.markers = append(r.markers, sel)
	}
	return r, nil
}

// Run blocks until ctx is cancelled, driving both cadences.
func (r *Reconciler) Run(ctx context.Context) {
	quick := r.clk.Ticker(r.cfg.QuickInterval)
	defer quick.Stop()
	deep := r.clk.Ticker(r.cfg.DeepInterval)
	defer deep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quick.C:
			r.QuickPass()
		case <-deep.C:
			r.DeepPass()
		}
	}
}

// QuickPass scans the marker selectors for unseen matches. Gated: an
// effective run (one that found work) suppresses further quick work for
// QuickGate.
func (r *Reconciler) QuickPass() {
	now := r.clk.Now()
	if !r.lastQuick.IsZero() && now.Sub(r.lastQuick) < r.cfg.QuickGate {
		return
	}

	root := r.tr.Root()
	if root == nil {
		return
	}

	var found []tree.Node
	tree.Walk(root, r.cfg.Limits, func(n tree.Node) bool {
		for _, sel := range r.markers {
			if sel.Match(n) && !r.intake.Seen(n.ID()) {
				found = append(found, n)
				break
			}
		}
		return true
	})

	if len(found) == 0 {
		return
	}
	r.lastQuick = now
	r.intake.Enqueue(found)
	r.logger.Debug("reconcile: quick pass recovered nodes", "count", len(found))
}

// DeepPass re-derives pending work from a full traversal. Unseen
// visible nodes are enqueued; unseen invisible nodes are deferred to
// the next deep pass, where they are re-checked first.
func (r *Reconciler) DeepPass() {
	root := r.tr.Root()
	if root == nil {
		return
	}

	var found []tree.Node
	var still []tree.Node
	kept := make(map[tree.NodeID]bool)

	// Carried-over invisible nodes first.
	for _, n := range r.deferred {
		if !n.Attached() || r.intake.Seen(n.ID()) {
			continue
		}
		if n.Visible() {
			found = append(found, n)
		} else {
			still = append(still, n)
			kept[n.ID()] = true
		}
	}

	complete := tree.Walk(root, r.cfg.Limits, func(n tree.Node) bool {
		if r.intake.Seen(n.ID()) {
			return true
		}
		if !n.Visible() {
			if !kept[n.ID()] {
				still = append(still, n)
				kept[n.ID()] = true
			}
			return true
		}
		found = append(found, n)
		return true
	})
	if !complete {
		r.logger.Warn("reconcile: deep pass truncated",
			"max_nodes", r.cfg.Limits.MaxNodes)
	}

	r.deferred = still
	if len(found) > 0 {
		r.intake.Enqueue(found)
		r.logger.Info("reconcile: deep pass recovered nodes",
			"count", len(found), "deferred", len(still))
	}
}
