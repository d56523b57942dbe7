// Package engine implements the domrelay core: the mutation collector,
// the time-budgeted drain scheduler, the priority-tier dispatcher, and
// the watcher registry.
//
// All engine state is owned by a single event-loop goroutine. External
// callers (source adapters, the reconciler, the public API) post
// closures onto a command channel; nothing in this package takes a lock
// around the pending set, the registry, or the processed table.
// Correctness rests on ordering discipline, not mutual exclusion: the
// pending set is moved to a private batch before a drain starts, so a
// mutation arriving mid-drain always gets its own future drain.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/domrelay/internal/idgen"
	"github.com/hazyhaar/domrelay/internal/metrics"
	"github.com/hazyhaar/domrelay/tree"
)

// ErrDestroyed is returned by operations posted after the engine loop
// has stopped.
var ErrDestroyed = errors.New("engine: destroyed")

// Config tunes the engine. Zero values for ChunkSize, RetryBackoff and
// ProcessedCap take defaults; a zero Budget means "yield after every
// chunk", which is what deterministic tests want.
type Config struct {
	// ChunkSize is the number of nodes dispatched between budget checks.
	ChunkSize int
	// Budget is the per-pass time budget. 0 yields after every chunk.
	Budget time.Duration
	// HighDelay, NormalDelay, LowDelay schedule the non-immediate tiers
	// relative to the end of the dispatch pass.
	HighDelay   time.Duration
	NormalDelay time.Duration
	LowDelay    time.Duration
	// RetryBackoff is the base handler retry delay, doubled per attempt.
	RetryBackoff time.Duration
	// ProcessedCap bounds the already-dispatched table.
	ProcessedCap int
	// Limits bound every subtree traversal.
	Limits tree.WalkLimits

	// Tree is the observed document, used for catch-up scans. May be
	// nil for pure push-mode embedding.
	Tree tree.Tree

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Set
}

func (c *Config) defaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 25
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.ProcessedCap <= 0 {
		c.ProcessedCap = 50000
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(nil)
	}
}

// Engine is the collect/drain/dispatch core. Create with New, start the
// loop with Run, stop by cancelling the Run context.
type Engine struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger
	met    *metrics.Set
	tr     tree.Tree

	cmds    chan func()
	drainCh chan struct{}
	stopped chan struct{}

	// Loop-owned state. Touched only from the loop goroutine, except
	// processed which is internally synchronised for Seen.
	ctx       context.Context
	pending   map[tree.NodeID]tree.Node
	processed *processedSet
	regs      []*registration
	byID      map[string]*registration
	delayq    *delayQueue
	resume    []*pass
	scanned   bool

	newID idgen.Generator
}

// New creates an Engine. Call Run to start the loop.
func New(cfg Config) (*Engine, error) {
	cfg.defaults()

	processed, err := newProcessedSet(cfg.ProcessedCap)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		clk:       cfg.Clock,
		logger:    cfg.Logger,
		met:       cfg.Metrics,
		tr:        cfg.Tree,
		cmds:      make(chan func(), 1024),
		drainCh:   make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		pending:   make(map[tree.NodeID]tree.Node),
		processed: processed,
		byID:      make(map[string]*registration),
		delayq:    newDelayQueue(cfg.Clock),
		newID:     idgen.Default,
	}, nil
}

// Run executes the event loop until ctx is cancelled. It must be called
// exactly once, on its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	defer func() {
		e.delayq.stop()
		close(e.stopped)
	}()

	for {
		// A yielded pass parks its continuation in e.resume; it must be
		// serviced here, never re-posted to cmds. The loop is the only
		// consumer of cmds, so a loop-side send could block forever once
		// the buffer fills. Queued commands still run first, which is
		// what keeps a long drain from starving Collect and Register.
		if len(e.resume) > 0 {
			select {
			case <-ctx.Done():
				return
			case fn := <-e.cmds:
				fn()
			case <-e.drainCh:
				e.drain()
			case <-e.delayq.C():
				e.delayq.runDue()
			default:
				p := e.resume[0]
				e.resume = e.resume[1:]
				e.runPass(p)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
		case <-e.drainCh:
			e.drain()
		case <-e.delayq.C():
			e.delayq.runDue()
		}
	}
}

// post hands fn to the loop goroutine. Returns false once the engine
// has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.stopped:
		return false
	case e.cmds <- fn:
		return true
	}
}

// call posts fn and waits for the loop to execute it.
func (e *Engine) call(fn func()) error {
	done := make(chan struct{})
	if !e.post(func() {
		fn()
		close(done)
	}) {
		return ErrDestroyed
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrDestroyed
	}
}

// Seen reports whether the node was already dispatched within the
// current eviction window. Safe from any goroutine; the reconciler uses
// it to avoid re-deriving work for handled nodes.
func (e *Engine) Seen(id tree.NodeID) bool {
	return e.processed.contains(id)
}

// Metrics returns a counter snapshot.
func (e *Engine) Metrics() metrics.Snapshot {
	return e.met.Read()
}

// Done is closed when the loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// Stopped reports whether the loop has exited.
func (e *Engine) Stopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

// DelayedTasks reports the number of queued tier and retry tasks. The
// delay queue is loop-owned state, so this reads it only once the loop
// has stopped and returns 0 while it is still running; destroy tests
// use it to assert nothing stayed scheduled.
func (e *Engine) DelayedTasks() int {
	if !e.Stopped() {
		return 0
	}
	return e.delayq.pendingTasks()
}

// InitialScan walks the whole tree through the dispatch path, then
// opens the register catch-up gate. Synchronous: when it returns every
// pre-existing node has been offered to the current registrations.
func (e *Engine) InitialScan() error {
	return e.call(func() {
		if e.tr != nil {
			root := e.tr.Root()
			ok := tree.Walk(root, e.cfg.Limits, func(n tree.Node) bool {
				e.addPending(n)
				return true
			})
			if !ok {
				e.logger.Warn("engine: initial scan truncated")
			}
		}
		e.drainNow()
		e.scanned = true
	})
}

// Flush forces an immediate synchronous drain: it cancels any pending
// scheduled pass, dispatches the whole pending set without budget
// yields, and runs all currently-due tier tasks. Must not be called
// from inside a handler.
func (e *Engine) Flush() {
	_ = e.call(func() {
		e.drainNow()
		e.delayq.runDue()
	})
}
