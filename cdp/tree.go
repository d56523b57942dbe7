// Package cdp adapts a Chrome page (via go-rod) to the domrelay tree
// and source contracts. The Tree mirrors the page's DOM node table from
// DOM.getDocument with depth=-1 and pierce=true — without that, CDP
// silently ignores mutations on deep nodes. The Source translates CDP
// DOM events into change batches; interception of low-level tree edits
// through an injected script is an optional extra signal, never a
// correctness dependency.
package cdp

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domrelay/tree"
)

// maxIngestDepth bounds payload ingestion. Real documents stay far
// below it; a deeper payload is truncated with a warning rather than
// trusted.
const maxIngestDepth = 512

// idSpace hands each Tree a disjoint NodeID range: CDP node IDs are
// small per-session integers, so outer and iframe trees would collide
// without an offset.
var idSpace atomic.Int64

// Tree mirrors one page's DOM as a tree.Tree.
type Tree struct {
	page   *rod.Page
	base   int64
	logger *slog.Logger

	mu    sync.RWMutex
	nodes map[proto.DOMNodeID]*nodeState
	root  proto.DOMNodeID
}

type nodeState struct {
	id       proto.DOMNodeID
	nodeType int
	tag      string // lowercase, "" for non-elements
	attrs    map[string]string
	parent   proto.DOMNodeID
	children []proto.DOMNodeID
	attached bool
}

// NewTree creates an empty mirror for page. Init populates it.
func NewTree(page *rod.Page) *Tree {
	return &Tree{
		page:   page,
		base:   idSpace.Add(1) << 32,
		logger: slog.Default(),
		nodes:  make(map[proto.DOMNodeID]*nodeState),
	}
}

// Init fetches the full document and rebuilds the node table.
func (t *Tree) Init() error {
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(t.page)
	if err != nil {
		return fmt.Errorf("cdp: DOM.getDocument: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[proto.DOMNodeID]*nodeState)
	t.root = doc.Root.NodeID
	t.walkIn(doc.Root, 0)
	return nil
}

// walkIn registers a DOM node and its subtree. Iterative with a depth
// ceiling: the payload is remote input, so it gets the same bounded
// traversal as everything else here. Caller holds the lock.
func (t *Tree) walkIn(root *proto.DOMNode, parent proto.DOMNodeID) {
	type frame struct {
		n      *proto.DOMNode
		parent proto.DOMNodeID
		depth  int
	}
	stack := []frame{{n: root, parent: parent}}
	truncated := false
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.n == nil {
			continue
		}
		st := &nodeState{
			id:       f.n.NodeID,
			nodeType: f.n.NodeType,
			attrs:    attrMap(f.n.Attributes),
			parent:   f.parent,
			attached: true,
		}
		if f.n.NodeType == 1 {
			st.tag = strings.ToLower(f.n.NodeName)
		}
		t.nodes[f.n.NodeID] = st
		if f.parent != 0 {
			p := t.nodes[f.parent]
			p.children = append(p.children, f.n.NodeID)
		}
		if f.depth >= maxIngestDepth {
			truncated = true
			continue
		}
		// Pushed in reverse so pops keep document order: children,
		// then shadow roots, then the content document.
		if f.n.ContentDocument != nil {
			stack = append(stack, frame{n: f.n.ContentDocument, parent: f.n.NodeID, depth: f.depth + 1})
		}
		for i := len(f.n.ShadowRoots) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: f.n.ShadowRoots[i], parent: f.n.NodeID, depth: f.depth + 1})
		}
		for i := len(f.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: f.n.Children[i], parent: f.n.NodeID, depth: f.depth + 1})
		}
	}
	if truncated {
		t.logger.Warn("cdp: document ingest truncated", "max_depth", maxIngestDepth)
	}
}

func attrMap(flat []string) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[flat[i]] = flat[i+1]
	}
	return m
}

// Root implements tree.Tree.
func (t *Tree) Root() tree.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == 0 {
		return nil
	}
	return &node{t: t, id: t.root}
}

// nodeOf returns the handle for a CDP node ID.
func (t *Tree) nodeOf(id proto.DOMNodeID) tree.Node {
	return &node{t: t, id: id}
}

// addNode registers a freshly-inserted node (CDP childNodeInserted).
func (t *Tree) addNode(parent proto.DOMNodeID, n *proto.DOMNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.walkIn(n, parent)
}

// removeNode detaches a subtree and returns every node ID it held, the
// root first. Entries are pruned from the table after collection.
func (t *Tree) removeNode(id proto.DOMNodeID) []proto.DOMNodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.nodes[id]
	if !ok {
		return nil
	}
	if p, ok := t.nodes[st.parent]; ok {
		for i, c := range p.children {
			if c == id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}

	var ids []proto.DOMNodeID
	stack := []proto.DOMNodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cs, ok := t.nodes[cur]
		if !ok {
			continue
		}
		ids = append(ids, cur)
		stack = append(stack, cs.children...)
		delete(t.nodes, cur)
	}
	return ids
}

func (t *Tree) setAttr(id proto.DOMNodeID, name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.nodes[id]; ok {
		st.attrs[name] = value
	}
}

func (t *Tree) delAttr(id proto.DOMNodeID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.nodes[id]; ok {
		delete(st.attrs, name)
	}
}

// node is a handle into the mirror table. It stays valid after the
// underlying node is pruned: methods then report detached/empty.
type node struct {
	t  *Tree
	id proto.DOMNodeID
}

func (n *node) ID() tree.NodeID {
	return tree.NodeID(n.t.base | int64(n.id))
}

func (n *node) Tag() string {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	if st, ok := n.t.nodes[n.id]; ok {
		return st.tag
	}
	return ""
}

func (n *node) Attr(name string) (string, bool) {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	if st, ok := n.t.nodes[n.id]; ok {
		v, ok := st.attrs[name]
		return v, ok
	}
	return "", false
}

func (n *node) Parent() tree.Node {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	st, ok := n.t.nodes[n.id]
	if !ok || st.parent == 0 {
		return nil
	}
	return &node{t: n.t, id: st.parent}
}

func (n *node) Children() []tree.Node {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	st, ok := n.t.nodes[n.id]
	if !ok {
		return nil
	}
	out := make([]tree.Node, len(st.children))
	for i, c := range st.children {
		out[i] = &node{t: n.t, id: c}
	}
	return out
}

func (n *node) Attached() bool {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	st, ok := n.t.nodes[n.id]
	return ok && st.attached
}

// Visible approximates rendering participation from attributes. A
// false positive costs one redundant dispatch, so no layout query is
// worth the CDP round-trip here.
func (n *node) Visible() bool {
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	for id := n.id; id != 0; {
		st, ok := n.t.nodes[id]
		if !ok {
			return true
		}
		if _, hidden := st.attrs["hidden"]; hidden {
			return false
		}
		if strings.Contains(strings.ReplaceAll(st.attrs["style"], " ", ""), "display:none") {
			return false
		}
		id = st.parent
	}
	return true
}
