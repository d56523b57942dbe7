package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/domrelay/tree"
)

// dispatchNode delivers one node to every matching registration.
// Immediate-tier handlers run inline, sequentially, each isolated;
// High/Normal/Low handlers are deferred onto the pass and scheduled
// when it completes, so they run on a later turn, after every
// immediate-tier handler of the whole pass, yields included.
func (e *Engine) dispatchNode(n tree.Node, p *pass) {
	if n == nil || !n.Attached() {
		e.met.StaleSkip()
		return
	}

	var tiers [tierCount][]*registration
	matched := false
	for _, r := range e.regs {
		if r.matches(n) {
			tiers[r.cfg.Priority] = append(tiers[r.cfg.Priority], r)
			matched = true
		}
	}

	for _, r := range tiers[PriorityImmediate] {
		e.runHandler(r, n, 1)
	}

	// Processed marking happens after the immediate tier completes: a
	// crash before this point leaves the node re-dispatchable by the
	// next rescan. Unmatched nodes are not marked, so a watcher
	// registered later still finds them via its catch-up scan.
	if matched {
		e.processed.add(n.ID())
		e.met.Dispatched()
	}

	for tier := PriorityHigh; tier <= PriorityLow; tier++ {
		for _, r := range tiers[tier] {
			p.deferred[tier] = append(p.deferred[tier], tierWork{reg: r, node: n})
		}
	}
}

func (e *Engine) enqueueTier(work []tierWork, due time.Time) {
	for _, w := range work {
		w := w
		e.delayq.push(due, func() {
			e.runHandler(w.reg, w.node, 1)
		})
	}
}

// runHandler invokes one handler with panic isolation and drives the
// retry policy. A failing handler never affects siblings, the node's
// processed marking, or the rest of the batch.
func (e *Engine) runHandler(r *registration, n tree.Node, attempt int) {
	err := r.invoke(e.ctx, n)
	if err == nil {
		return
	}

	if r.cfg.Retry.Enabled && attempt < r.cfg.Retry.MaxAttempts {
		backoff := e.cfg.RetryBackoff << (attempt - 1)
		e.met.Retry()
		e.logger.Warn("engine: handler failed, retrying",
			"watcher", r.id, "attempt", attempt, "backoff", backoff, "error", err)
		e.delayq.push(e.clk.Now().Add(backoff), func() {
			e.runHandler(r, n, attempt+1)
		})
		return
	}

	e.met.Missed()
	e.logger.Error("engine: handler abandoned",
		"watcher", r.id, "attempts", attempt, "error", err)
}

// invoke calls the handler, converting a panic into an error so one
// misbehaving watcher cannot take the loop down.
func (r *registration) invoke(ctx context.Context, n tree.Node) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return r.cfg.Handler(ctx, n)
}
