package engine

import (
	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/tree"
)

// Collect folds a batch of raw change events into the pending set and
// schedules a drain if new work appeared. Safe from any goroutine.
func (e *Engine) Collect(b mutation.Batch) {
	e.post(func() { e.collect(b) })
}

// Enqueue adds nodes straight to the pending set, bypassing event
// expansion. The reconciler uses it for rescan-derived work.
func (e *Engine) Enqueue(nodes []tree.Node) {
	e.post(func() {
		for _, n := range nodes {
			e.addPending(n)
		}
		if len(e.pending) > 0 {
			e.scheduleDrain()
		}
	})
}

func (e *Engine) collect(b mutation.Batch) {
	e.met.Notifications(len(b.Events))
	e.met.Touch(e.clk.Now())

	for _, ev := range b.Events {
		switch ev.Kind {
		case mutation.KindInsert:
			e.collectInsert(ev)
		case mutation.KindRemove:
			e.collectRemove(ev)
		case mutation.KindAttr:
			e.collectAttr(ev)
		case mutation.KindText:
			e.collectText(ev)
		default:
			e.addPending(ev.Target)
		}
	}

	if len(e.pending) > 0 {
		e.scheduleDrain()
	}
}

func (e *Engine) collectInsert(ev mutation.Event) {
	e.addPending(ev.Target)
	for _, root := range ev.Added {
		e.expand(root)
	}
}

// collectRemove re-targets the parent and evicts the removed subtree
// from both pending and processed — detached nodes must not pin table
// entries for the life of the page.
func (e *Engine) collectRemove(ev mutation.Event) {
	e.addPending(ev.Target)
	for _, root := range ev.Removed {
		tree.Walk(root, e.cfg.Limits, func(n tree.Node) bool {
			delete(e.pending, n.ID())
			e.processed.remove(n.ID())
			return true
		})
	}
}

func (e *Engine) collectAttr(ev mutation.Event) {
	e.addPending(ev.Target)
	// A visibility-class attribute flip can newly qualify descendants
	// that were skipped while hidden.
	if tree.AffectsVisibility(ev.AttrName) {
		e.expand(ev.Target)
	}
}

// collectText retargets a text change to the nearest interactive
// ancestor and its element siblings: label text affects both the
// control itself and sibling-relative matching.
func (e *Engine) collectText(ev mutation.Event) {
	anc := tree.InteractiveAncestor(ev.Target)
	if anc == nil {
		e.addPending(ev.Target)
		return
	}
	e.addPending(anc)
	if p := anc.Parent(); p != nil {
		for _, sib := range p.Children() {
			if sib.Tag() != "" {
				e.addPending(sib)
			}
		}
	}
}

// expand walks a subtree and adds every node that has not been
// processed yet. Volatile containers are always re-added: they are
// tagged as holding repeatedly-replaced content, so "already processed"
// says nothing about their current state.
func (e *Engine) expand(root tree.Node) {
	if root == nil {
		return
	}
	ok := tree.Walk(root, e.cfg.Limits, func(n tree.Node) bool {
		if !e.processed.contains(n.ID()) || tree.Volatile(n) {
			e.addPending(n)
		}
		return true
	})
	if !ok {
		e.logger.Warn("engine: subtree expansion truncated",
			"root", root.Tag(), "max_nodes", e.cfg.Limits.MaxNodes)
	}
}

func (e *Engine) addPending(n tree.Node) {
	if n == nil {
		return
	}
	e.pending[n.ID()] = n
}
