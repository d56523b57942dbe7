package tree_test

import (
	"testing"

	"github.com/hazyhaar/domrelay/internal/memtree"
	"github.com/hazyhaar/domrelay/tree"
)

func TestWalkDocumentOrder(t *testing.T) {
	mt := memtree.New()
	root := mt.Root().(*memtree.Node)
	body := root.SilentAppend("body", nil)
	a := body.SilentAppend("div", nil)
	a1 := a.SilentAppend("span", nil)
	b := body.SilentAppend("p", nil)

	var got []tree.NodeID
	ok := tree.Walk(root, tree.WalkLimits{}, func(n tree.Node) bool {
		got = append(got, n.ID())
		return true
	})
	if !ok {
		t.Fatalf("Walk reported truncation on a small tree")
	}

	want := []tree.NodeID{root.ID(), body.ID(), a.ID(), a1.ID(), b.ID()}
	if len(got) != len(want) {
		t.Fatalf("visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visited %v, want %v", got, want)
		}
	}
}

func TestWalkStopsWhenVisitorReturnsFalse(t *testing.T) {
	mt := memtree.New()
	root := mt.Root().(*memtree.Node)
	body := root.SilentAppend("body", nil)
	for i := 0; i < 5; i++ {
		body.SilentAppend("div", nil)
	}

	visited := 0
	ok := tree.Walk(root, tree.WalkLimits{}, func(tree.Node) bool {
		visited++
		return visited < 3
	})
	if !ok {
		t.Fatalf("early stop reported as truncation")
	}
	if visited != 3 {
		t.Fatalf("visited %d nodes, want 3", visited)
	}
}

func TestWalkNodeLimitTruncates(t *testing.T) {
	mt := memtree.New()
	root := mt.Root().(*memtree.Node)
	body := root.SilentAppend("body", nil)
	for i := 0; i < 10; i++ {
		body.SilentAppend("div", nil)
	}

	visited := 0
	ok := tree.Walk(root, tree.WalkLimits{MaxNodes: 4}, func(tree.Node) bool {
		visited++
		return true
	})
	if ok {
		t.Fatalf("Walk did not report truncation")
	}
	if visited > 4 {
		t.Fatalf("visited %d nodes past the limit", visited)
	}
}

func TestWalkDepthLimitTruncates(t *testing.T) {
	mt := memtree.New()
	cur := mt.Root().(*memtree.Node)
	for i := 0; i < 6; i++ {
		cur = cur.SilentAppend("div", nil)
	}

	if ok := tree.Walk(mt.Root(), tree.WalkLimits{MaxDepth: 3}, func(tree.Node) bool {
		return true
	}); ok {
		t.Fatalf("Walk did not report depth truncation")
	}
}

func TestWalkNilRoot(t *testing.T) {
	if ok := tree.Walk(nil, tree.WalkLimits{}, func(tree.Node) bool {
		t.Fatal("visitor called for nil root")
		return false
	}); !ok {
		t.Fatalf("nil root reported as truncation")
	}
}

func TestCollect(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	body.SilentAppend("div", nil)
	body.SilentAppend("span", nil)
	body.SilentAppend("div", nil)

	got := tree.Collect(mt.Root(), tree.WalkLimits{}, func(n tree.Node) bool {
		return n.Tag() == "div"
	})
	if len(got) != 2 {
		t.Fatalf("Collect found %d divs, want 2", len(got))
	}
}
