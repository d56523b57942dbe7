package memtree

import (
	"context"
	"sync"
	"testing"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/tree"
)

func collectBatches(t *testing.T, mt *Tree) (*[]mutation.Batch, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var got []mutation.Batch
	src := NewSource(mt)
	if err := src.Subscribe(context.Background(), func(b mutation.Batch) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, b)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return &got, &mu
}

func TestNodeIDsAreUniqueAcrossTrees(t *testing.T) {
	seen := make(map[tree.NodeID]bool)
	for i := 0; i < 3; i++ {
		mt := New()
		root := mt.Root().(*Node)
		for _, n := range []*Node{root, root.SilentAppend("body", nil)} {
			if seen[n.ID()] {
				t.Fatalf("duplicate node id %d", n.ID())
			}
			seen[n.ID()] = true
		}
	}
}

func TestAppendEmitsInsert(t *testing.T) {
	mt := New()
	got, mu := collectBatches(t, mt)

	body := mt.Root().(*Node).Append("body", nil)

	mu.Lock()
	defer mu.Unlock()
	if len(*got) != 1 {
		t.Fatalf("emitted %d batches, want 1", len(*got))
	}
	ev := (*got)[0].Events[0]
	if ev.Kind != mutation.KindInsert {
		t.Fatalf("Kind = %v, want insert", ev.Kind)
	}
	if ev.Target.ID() != mt.Root().ID() {
		t.Fatalf("insert target is not the parent")
	}
	if len(ev.Added) != 1 || ev.Added[0].ID() != body.ID() {
		t.Fatalf("Added = %v, want the new child", ev.Added)
	}
}

func TestSilentMutatorsEmitNothing(t *testing.T) {
	mt := New()
	got, mu := collectBatches(t, mt)

	n := mt.Root().(*Node).SilentAppend("div", nil)
	n.SilentSetAttr("class", "x")
	n.SilentDelAttr("class")

	mu.Lock()
	defer mu.Unlock()
	if len(*got) != 0 {
		t.Fatalf("silent mutations emitted %d batches", len(*got))
	}
}

func TestRemoveDetachesSubtree(t *testing.T) {
	mt := New()
	body := mt.Root().(*Node).Append("body", nil)
	a := body.Append("div", nil)
	inner := a.Append("span", nil)

	got, mu := collectBatches(t, mt)
	a.Remove()

	if a.Attached() || inner.Attached() {
		t.Fatalf("removed subtree still attached")
	}
	if a.Parent() != nil {
		t.Fatalf("removed node keeps its parent")
	}
	if got := len(body.Children()); got != 0 {
		t.Fatalf("parent keeps %d children", got)
	}

	mu.Lock()
	defer mu.Unlock()
	ev := (*got)[0].Events[0]
	if ev.Kind != mutation.KindRemove || ev.Target.ID() != body.ID() {
		t.Fatalf("remove event = %+v, want remove targeting the parent", ev)
	}
}

func TestVisible(t *testing.T) {
	mt := New()
	body := mt.Root().(*Node).SilentAppend("body", nil)

	plain := body.SilentAppend("div", nil)
	hidden := body.SilentAppend("div", map[string]string{"hidden": ""})
	insideHidden := hidden.SilentAppend("span", nil)
	styled := body.SilentAppend("div", map[string]string{"style": "display:none"})

	if !plain.Visible() {
		t.Fatalf("plain div not visible")
	}
	if hidden.Visible() {
		t.Fatalf("hidden div visible")
	}
	if insideHidden.Visible() {
		t.Fatalf("descendant of hidden div visible")
	}
	if styled.Visible() {
		t.Fatalf("display:none div visible")
	}
}

func TestSourceSubscribeOnce(t *testing.T) {
	mt := New()
	src := NewSource(mt)
	nop := func(mutation.Batch) {}

	if err := src.Subscribe(context.Background(), nop); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if err := src.Subscribe(context.Background(), nop); err == nil {
		t.Fatalf("second Subscribe accepted")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSourceCloseStopsDelivery(t *testing.T) {
	mt := New()
	root := mt.Root().(*Node)

	delivered := 0
	src := NewSource(mt)
	if err := src.Subscribe(context.Background(), func(mutation.Batch) { delivered++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	root.Append("body", nil)
	_ = src.Close()
	root.Append("div", nil)

	if delivered != 1 {
		t.Fatalf("delivered %d batches, want 1", delivered)
	}
}

func TestFactoryScoped(t *testing.T) {
	mt := New()
	body := mt.Root().(*Node).SilentAppend("body", nil)

	plain := body.SilentAppend("iframe", nil)
	if _, err := (Factory{}).Scoped(plain); err == nil {
		t.Fatalf("Scoped accepted a non-region node")
	}

	frame := body.AppendRegion("iframe")
	if _, err := (Factory{}).Scoped(frame); err == nil {
		t.Fatalf("Scoped accepted an inaccessible region")
	}

	frame.SetAccessible(true)
	src, err := (Factory{}).Scoped(frame)
	if err != nil {
		t.Fatalf("Scoped: %v", err)
	}

	delivered := 0
	if err := src.Subscribe(context.Background(), func(mutation.Batch) { delivered++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	frame.Inner().Root().(*Node).Append("p", nil)
	if delivered != 1 {
		t.Fatalf("scoped source delivered %d batches, want 1", delivered)
	}
}
