package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSnapshotTracksCounters(t *testing.T) {
	s := New(nil)

	s.Notifications(3)
	s.Dispatched()
	s.Dispatched()
	s.Missed()
	s.StaleSkip()
	s.Retry()
	s.Drain()
	s.Yield()

	snap := s.Read()
	if snap.TotalNotifications != 3 {
		t.Fatalf("TotalNotifications = %d, want 3", snap.TotalNotifications)
	}
	if snap.DispatchedNodes != 2 {
		t.Fatalf("DispatchedNodes = %d, want 2", snap.DispatchedNodes)
	}
	if snap.MissedDispatches != 1 {
		t.Fatalf("MissedDispatches = %d, want 1", snap.MissedDispatches)
	}
	if snap.StaleSkips != 1 || snap.Retries != 1 || snap.Drains != 1 || snap.Yields != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestTouch(t *testing.T) {
	s := New(nil)

	if !s.Read().LastActivityTime.IsZero() {
		t.Fatalf("fresh set reports activity")
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Touch(now)
	if got := s.Read().LastActivityTime; !got.Equal(now) {
		t.Fatalf("LastActivityTime = %v, want %v", got, now)
	}
}

func TestPrometheusRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Notifications(5)
	s.Dispatched()

	if got := testutil.ToFloat64(s.promNotifications); got != 5 {
		t.Fatalf("prometheus notifications = %v, want 5", got)
	}
	if got := testutil.ToFloat64(s.promDispatched); got != 1 {
		t.Fatalf("prometheus dispatched = %v, want 1", got)
	}

	// A second set on the same registry must collide, which is how a
	// double-registration bug would surface.
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate registration did not panic")
		}
	}()
	New(reg)
}
