package engine

import "github.com/hazyhaar/domrelay/tree"

// scheduleDrain arms the next drain pass. Idempotent: a pass already
// scheduled absorbs the request.
func (e *Engine) scheduleDrain() {
	select {
	case e.drainCh <- struct{}{}:
	default:
	}
}

// takePending moves the whole pending set into a private batch, leaving
// a fresh map for work arriving during the drain. A node is removed
// from pending exactly once per coalescing cycle, here.
func (e *Engine) takePending() []tree.Node {
	if len(e.pending) == 0 {
		return nil
	}
	batch := make([]tree.Node, 0, len(e.pending))
	for _, n := range e.pending {
		batch = append(batch, n)
	}
	e.pending = make(map[tree.NodeID]tree.Node)
	return batch
}

// pass carries one drain's batch and its deferred tier work across
// budget yields. High/Normal/Low registrations accumulate here while
// the batch is dispatched chunk by chunk and reach the delay queue only
// when the last chunk completes: tier delays are measured from the end
// of the pass, and no later-tier handler of a cycle can run before the
// cycle's immediate tier has finished.
type pass struct {
	batch    []tree.Node
	next     int
	deferred [tierCount][]tierWork
}

type tierWork struct {
	reg  *registration
	node tree.Node
}

// drain runs one scheduled pass with chunking and the time budget.
func (e *Engine) drain() {
	if batch := e.takePending(); len(batch) > 0 {
		e.runPass(&pass{batch: batch})
	}
}

// drainNow is the forceImmediate path: cancel any scheduled pass,
// finish any yielded passes, and dispatch everything inline, ignoring
// the budget.
func (e *Engine) drainNow() {
	select {
	case <-e.drainCh:
	default:
	}
	for len(e.resume) > 0 {
		p := e.resume[0]
		e.resume = e.resume[1:]
		e.completePass(p)
	}
	if batch := e.takePending(); len(batch) > 0 {
		e.completePass(&pass{batch: batch})
	}
}

// runPass dispatches the pass in chunks, checking the elapsed budget
// between chunks. On overrun the pass is parked on e.resume for the
// loop to pick up, so commands that arrived meanwhile, new collects
// included, run before the continuation. That is the fairness choice
// here: chunk continuations never starve newly-scheduled work, at the
// cost of not being strictly FIFO with it.
func (e *Engine) runPass(p *pass) {
	start := e.clk.Now()
	for p.next < len(p.batch) {
		end := p.next + e.cfg.ChunkSize
		if end > len(p.batch) {
			end = len(p.batch)
		}
		for ; p.next < end; p.next++ {
			e.dispatchNode(p.batch[p.next], p)
		}
		if p.next < len(p.batch) && e.clk.Since(start) >= e.cfg.Budget {
			e.met.Yield()
			e.resume = append(e.resume, p)
			return
		}
	}
	e.finishPass(p)
}

// completePass dispatches the rest of the pass without budget checks.
func (e *Engine) completePass(p *pass) {
	for ; p.next < len(p.batch); p.next++ {
		e.dispatchNode(p.batch[p.next], p)
	}
	e.finishPass(p)
}

// finishPass schedules the deferred tiers with delays relative to this
// moment, the end of the dispatch pass.
func (e *Engine) finishPass(p *pass) {
	now := e.clk.Now()
	e.enqueueTier(p.deferred[PriorityHigh], now.Add(e.cfg.HighDelay))
	e.enqueueTier(p.deferred[PriorityNormal], now.Add(e.cfg.NormalDelay))
	e.enqueueTier(p.deferred[PriorityLow], now.Add(e.cfg.LowDelay))
	e.met.Drain()
}
