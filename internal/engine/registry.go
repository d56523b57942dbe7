package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/domrelay/tree"
)

// Priority is the watcher urgency tier. Tiers always execute in fixed
// order Immediate → High → Normal → Low for a given dispatch cycle.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow

	tierCount = 4
)

// String implements fmt.Stringer for log output.
func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Handler receives one matched node. Returning an error triggers the
// registration's retry policy.
type Handler func(ctx context.Context, n tree.Node) error

// RetryPolicy controls re-invocation of a failing handler.
type RetryPolicy struct {
	Enabled bool
	// MaxAttempts is the total attempt ceiling, first try included.
	// Defaults to 3 when retries are enabled.
	MaxAttempts int
}

// Registration describes one watcher. Immutable once registered: only
// Register and Unregister mutate the registry.
type Registration struct {
	// Selector is a cheap structural predicate (see tree.ParseSelector).
	// Registrations with a non-empty Selector participate in the
	// synchronous catch-up scan.
	Selector string

	// Match is an optional extra predicate, ANDed with Selector.
	// Match-only registrations are excluded from catch-up: an arbitrary
	// function is not assumed cheap enough to run over the whole tree.
	Match func(n tree.Node) bool

	Priority Priority
	Handler  Handler
	Retry    RetryPolicy
}

type registration struct {
	id  string
	cfg Registration
	sel *tree.Selector // nil when Selector is empty
}

func (r *registration) matches(n tree.Node) bool {
	if r.sel != nil && !r.sel.Match(n) {
		return false
	}
	if r.cfg.Match != nil && !r.cfg.Match(n) {
		return false
	}
	return true
}

// Register validates and stores a watcher. When the initial scan has
// completed and the registration carries a selector, pre-existing
// matching nodes not yet processed are dispatched before Register
// returns, so a fresh watcher never waits for an unrelated mutation.
// Must not be called from inside a handler.
func (e *Engine) Register(cfg Registration) (string, error) {
	if cfg.Handler == nil {
		return "", errors.New("engine: registration needs a handler")
	}
	if cfg.Selector == "" && cfg.Match == nil {
		return "", errors.New("engine: registration needs a selector or match predicate")
	}
	if cfg.Priority < PriorityImmediate || cfg.Priority > PriorityLow {
		return "", fmt.Errorf("engine: invalid priority %d", cfg.Priority)
	}
	if cfg.Retry.Enabled && cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}

	r := &registration{id: e.newID(), cfg: cfg}
	if cfg.Selector != "" {
		sel, err := tree.ParseSelector(cfg.Selector)
		if err != nil {
			return "", fmt.Errorf("engine: %w", err)
		}
		r.sel = sel
	}

	err := e.call(func() {
		e.regs = append(e.regs, r)
		e.byID[r.id] = r
		if e.scanned && r.sel != nil {
			e.catchUp(r)
		}
	})
	if err != nil {
		return "", err
	}
	return r.id, nil
}

// Unregister removes a watcher. In-flight dispatches for the id —
// queued tier tasks and pending retries — still complete.
func (e *Engine) Unregister(id string) {
	e.post(func() {
		r, ok := e.byID[id]
		if !ok {
			return
		}
		delete(e.byID, id)
		for i, cur := range e.regs {
			if cur == r {
				e.regs = append(e.regs[:i], e.regs[i+1:]...)
				break
			}
		}
	})
}

// catchUp queries existing matches for a new registration and force-
// drains them, so the watcher sees pre-existing nodes synchronously.
func (e *Engine) catchUp(r *registration) {
	if e.tr == nil {
		return
	}
	found := 0
	tree.Walk(e.tr.Root(), e.cfg.Limits, func(n tree.Node) bool {
		if r.matches(n) && !e.processed.contains(n.ID()) {
			e.addPending(n)
			found++
		}
		return true
	})
	if found > 0 {
		e.logger.Debug("engine: registration catch-up",
			"watcher", r.id, "nodes", found)
	}
	e.drainNow()
	e.delayq.runDue()
}
