package region

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hazyhaar/domrelay/internal/memtree"
	"github.com/hazyhaar/domrelay/mutation"
)

type batchSink struct {
	mu  sync.Mutex
	got []mutation.Batch
}

func (s *batchSink) deliver(b mutation.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, b)
}

func (s *batchSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func newMonitor(t *testing.T, mt *memtree.Tree, sink *batchSink, mock *clock.Mock) *Monitor {
	t.Helper()
	return New(mt, memtree.Factory{}, sink.deliver, Config{
		Clock:  mock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSweepSkipsInaccessibleRegions(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	body.AppendRegion("iframe")

	sink := &batchSink{}
	m := newMonitor(t, mt, sink, clock.NewMock())

	m.Sweep(context.Background())
	if got := m.Attached(); got != 0 {
		t.Fatalf("Attached = %d, want 0 for an inaccessible region", got)
	}
}

func TestSweepAttachesAndForwardsBatches(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	frame := body.AppendRegion("iframe")
	frame.SetAccessible(true)

	sink := &batchSink{}
	m := newMonitor(t, mt, sink, clock.NewMock())

	m.Sweep(context.Background())
	if got := m.Attached(); got != 1 {
		t.Fatalf("Attached = %d, want 1", got)
	}

	frame.Inner().Root().(*memtree.Node).Append("p", nil)
	if got := sink.count(); got != 1 {
		t.Fatalf("forwarded %d batches, want 1", got)
	}
}

func TestFailedAttachRetriesAfterCooldown(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	frame := body.AppendRegion("iframe")

	mock := clock.NewMock()
	sink := &batchSink{}
	m := newMonitor(t, mt, sink, mock)
	ctx := context.Background()

	m.Sweep(ctx)
	if got := m.Attached(); got != 0 {
		t.Fatalf("Attached = %d, want 0", got)
	}

	// Now accessible, but inside the cooldown window.
	frame.SetAccessible(true)
	m.Sweep(ctx)
	if got := m.Attached(); got != 0 {
		t.Fatalf("re-attempted inside the cooldown, Attached = %d", got)
	}

	mock.Add(5 * time.Minute)
	m.Sweep(ctx)
	if got := m.Attached(); got != 1 {
		t.Fatalf("Attached = %d after cooldown, want 1", got)
	}
}

func TestSweepDetachesRemovedRegions(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	frame := body.AppendRegion("iframe")
	frame.SetAccessible(true)

	sink := &batchSink{}
	m := newMonitor(t, mt, sink, clock.NewMock())
	ctx := context.Background()

	m.Sweep(ctx)
	if got := m.Attached(); got != 1 {
		t.Fatalf("Attached = %d, want 1", got)
	}

	frame.Remove()
	m.Sweep(ctx)
	if got := m.Attached(); got != 0 {
		t.Fatalf("Attached = %d after root removal, want 0", got)
	}

	// The scoped source is closed: inner mutations go nowhere.
	before := sink.count()
	frame.Inner().Root().(*memtree.Node).Append("p", nil)
	if got := sink.count(); got != before {
		t.Fatalf("detached region still forwarded a batch")
	}
}

func TestSweepToleratesNonRegionRoots(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	// form is a monitored root tag but this one embeds nothing.
	body.SilentAppend("form", nil)

	sink := &batchSink{}
	m := newMonitor(t, mt, sink, clock.NewMock())

	m.Sweep(context.Background())
	if got := m.Attached(); got != 0 {
		t.Fatalf("Attached = %d, want 0 for a plain form", got)
	}
}

func TestRunDetachesOnCancel(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	frame := body.AppendRegion("iframe")
	frame.SetAccessible(true)

	sink := &batchSink{}
	m := newMonitor(t, mt, sink, clock.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	// The initial sweep runs before the ticker loop.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame.Inner().Root().(*memtree.Node).Append("p", nil)
		if sink.count() > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatalf("initial sweep never attached the region")
	}

	cancel()
	<-done

	before := sink.count()
	frame.Inner().Root().(*memtree.Node).Append("p", nil)
	if got := sink.count(); got != before {
		t.Fatalf("scoped source still live after Run returned")
	}
}
