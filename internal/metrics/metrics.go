// Package metrics tracks domrelay counters. Counters are held twice:
// as atomics for cheap race-free snapshots on the introspection path,
// and as prometheus collectors for the /metrics endpoint. They are
// observability only — nothing in the engine branches on them.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set is the counter bundle for one relay instance.
type Set struct {
	totalNotifications atomic.Int64
	dispatchedNodes    atomic.Int64
	missedDispatches   atomic.Int64
	staleSkips         atomic.Int64
	retries            atomic.Int64
	drains             atomic.Int64
	yields             atomic.Int64
	lastActivity       atomic.Int64 // unix nanos

	promNotifications prometheus.Counter
	promDispatched    prometheus.Counter
	promMissed        prometheus.Counter
	promStale         prometheus.Counter
	promRetries       prometheus.Counter
	promDrains        prometheus.Counter
	promYields        prometheus.Counter
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	TotalNotifications int64     `json:"total_notifications"`
	DispatchedNodes    int64     `json:"dispatched_nodes"`
	MissedDispatches   int64     `json:"missed_dispatches"`
	StaleSkips         int64     `json:"stale_skips"`
	Retries            int64     `json:"retries"`
	Drains             int64     `json:"drains"`
	Yields             int64     `json:"yields"`
	LastActivityTime   time.Time `json:"last_activity_time"`
}

// New creates a Set registered on reg. A nil registerer keeps the
// prometheus side inert (library embedding without an HTTP surface).
func New(reg prometheus.Registerer) *Set {
	s := &Set{}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	s.promNotifications = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_notifications_total",
		Help: "Raw change events received from all sources.",
	})
	s.promDispatched = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_dispatched_nodes_total",
		Help: "Nodes dispatched to at least one watcher.",
	})
	s.promMissed = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_missed_dispatches_total",
		Help: "Handler invocations abandoned after retry exhaustion.",
	})
	s.promStale = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_stale_skips_total",
		Help: "Pending nodes skipped because they left the tree.",
	})
	s.promRetries = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_handler_retries_total",
		Help: "Handler retry attempts scheduled.",
	})
	s.promDrains = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_drains_total",
		Help: "Completed drain passes.",
	})
	s.promYields = f.NewCounter(prometheus.CounterOpts{
		Name: "domrelay_drain_yields_total",
		Help: "Drain passes that yielded on budget overrun.",
	})
	return s
}

// Notifications records n raw events arriving.
func (s *Set) Notifications(n int) {
	s.totalNotifications.Add(int64(n))
	s.promNotifications.Add(float64(n))
}

// Dispatched records one node delivered to watchers.
func (s *Set) Dispatched() {
	s.dispatchedNodes.Add(1)
	s.promDispatched.Inc()
}

// Missed records one abandoned handler invocation.
func (s *Set) Missed() {
	s.missedDispatches.Add(1)
	s.promMissed.Inc()
}

// StaleSkip records one pending node found detached.
func (s *Set) StaleSkip() {
	s.staleSkips.Add(1)
	s.promStale.Inc()
}

// Retry records one scheduled handler retry.
func (s *Set) Retry() {
	s.retries.Add(1)
	s.promRetries.Inc()
}

// Drain records one completed drain pass.
func (s *Set) Drain() {
	s.drains.Add(1)
	s.promDrains.Inc()
}

// Yield records one budget-overrun yield.
func (s *Set) Yield() {
	s.yields.Add(1)
	s.promYields.Inc()
}

// Touch updates the last-activity timestamp.
func (s *Set) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// Read returns a consistent-enough snapshot (each counter is read
// atomically; cross-counter skew is acceptable for observability).
func (s *Set) Read() Snapshot {
	var last time.Time
	if ns := s.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Snapshot{
		TotalNotifications: s.totalNotifications.Load(),
		DispatchedNodes:    s.dispatchedNodes.Load(),
		MissedDispatches:   s.missedDispatches.Load(),
		StaleSkips:         s.staleSkips.Load(),
		Retries:            s.retries.Load(),
		Drains:             s.drains.Load(),
		Yields:             s.yields.Load(),
		LastActivityTime:   last,
	}
}
