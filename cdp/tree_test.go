package cdp

import (
	"io"
	"log/slog"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

// The mirror's ingest and prune paths only touch the node table, so
// they are exercised here on hand-built payloads without a browser.

func newTestTree() *Tree {
	t := NewTree(nil)
	t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return t
}

func TestIngestPreservesDocumentOrder(t *testing.T) {
	doc := &proto.DOMNode{
		NodeID: 1, NodeType: 9, NodeName: "#document",
		Children: []*proto.DOMNode{{
			NodeID: 2, NodeType: 1, NodeName: "HTML",
			Attributes: []string{"lang", "en"},
			Children: []*proto.DOMNode{
				{NodeID: 3, NodeType: 1, NodeName: "HEAD"},
				{
					NodeID: 4, NodeType: 1, NodeName: "BODY",
					Children: []*proto.DOMNode{
						{NodeID: 5, NodeType: 1, NodeName: "DIV"},
						{NodeID: 6, NodeType: 1, NodeName: "SPAN"},
					},
					ShadowRoots: []*proto.DOMNode{
						{NodeID: 7, NodeType: 11, NodeName: "#shadow-root"},
					},
				},
			},
		}},
	}

	tr := newTestTree()
	tr.mu.Lock()
	tr.root = doc.NodeID
	tr.walkIn(doc, 0)
	tr.mu.Unlock()

	if got := len(tr.nodes); got != 7 {
		t.Fatalf("ingested %d nodes, want 7", got)
	}
	if got := tr.nodes[2].tag; got != "html" {
		t.Fatalf("tag = %q, want lowercased %q", got, "html")
	}
	if got := tr.nodes[2].attrs["lang"]; got != "en" {
		t.Fatalf("attrs[lang] = %q, want %q", got, "en")
	}

	body := tr.nodes[4]
	want := []proto.DOMNodeID{5, 6, 7}
	if len(body.children) != len(want) {
		t.Fatalf("body children = %v, want %v", body.children, want)
	}
	for i := range want {
		if body.children[i] != want[i] {
			t.Fatalf("body children = %v, want %v", body.children, want)
		}
	}
	if got := tr.nodes[7].parent; got != 4 {
		t.Fatalf("shadow root parent = %d, want 4", got)
	}
	if !tr.nodes[5].attached {
		t.Fatalf("ingested node not marked attached")
	}
}

func TestIngestDeepPayloadIsTruncated(t *testing.T) {
	// A single chain deeper than the ceiling: everything above it is
	// kept, the excess is dropped instead of trusted.
	root := &proto.DOMNode{NodeID: 1, NodeType: 1, NodeName: "HTML"}
	cur := root
	for i := 2; i <= maxIngestDepth+10; i++ {
		child := &proto.DOMNode{NodeID: proto.DOMNodeID(i), NodeType: 1, NodeName: "DIV"}
		cur.Children = []*proto.DOMNode{child}
		cur = child
	}

	tr := newTestTree()
	tr.mu.Lock()
	tr.walkIn(root, 0)
	tr.mu.Unlock()

	if got := len(tr.nodes); got != maxIngestDepth+1 {
		t.Fatalf("ingested %d nodes, want %d", got, maxIngestDepth+1)
	}
	deepest := tr.nodes[proto.DOMNodeID(maxIngestDepth+1)]
	if deepest == nil {
		t.Fatalf("node at the ceiling missing from the table")
	}
	if len(deepest.children) != 0 {
		t.Fatalf("children past the ceiling were ingested: %v", deepest.children)
	}
	if _, ok := tr.nodes[proto.DOMNodeID(maxIngestDepth+2)]; ok {
		t.Fatalf("node past the ceiling was ingested")
	}
}

func TestRemoveNodePrunesWholeSubtree(t *testing.T) {
	doc := &proto.DOMNode{
		NodeID: 1, NodeType: 9, NodeName: "#document",
		Children: []*proto.DOMNode{{
			NodeID: 2, NodeType: 1, NodeName: "BODY",
			Children: []*proto.DOMNode{
				{
					NodeID: 3, NodeType: 1, NodeName: "DIV",
					Children: []*proto.DOMNode{
						{NodeID: 4, NodeType: 1, NodeName: "SPAN"},
					},
				},
				{NodeID: 5, NodeType: 1, NodeName: "P"},
			},
		}},
	}

	tr := newTestTree()
	tr.mu.Lock()
	tr.root = doc.NodeID
	tr.walkIn(doc, 0)
	tr.mu.Unlock()

	ids := tr.removeNode(3)
	if len(ids) != 2 || ids[0] != 3 {
		t.Fatalf("removeNode returned %v, want the subtree with its root first", ids)
	}
	if _, ok := tr.nodes[4]; ok {
		t.Fatalf("descendant survived the prune")
	}
	body := tr.nodes[2]
	if len(body.children) != 1 || body.children[0] != 5 {
		t.Fatalf("body children after prune = %v, want [5]", body.children)
	}
}
