// Package memtree is an in-memory mutable tree implementing the
// domrelay tree and source contracts. It exists for tests and for the
// demo path: mutators emit change batches like a real adapter, and the
// Silent variants mutate without notifying — the blind-spot case the
// reconciliation loop exists for. Regions model embedded sub-documents
// that only a scoped secondary source can observe.
package memtree

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/source"
	"github.com/hazyhaar/domrelay/tree"
)

// ids is process-global so nodes from outer and embedded trees never
// collide.
var ids atomic.Int64

// Tree is a mutable in-memory document.
type Tree struct {
	mu   sync.Mutex
	root *Node
	subs map[int]func(mutation.Batch)
	nsub int
}

// New creates a tree with an <html> root.
func New() *Tree {
	t := &Tree{subs: make(map[int]func(mutation.Batch))}
	t.root = t.newNode("html", nil)
	t.root.attached = true
	return t
}

// Root implements tree.Tree.
func (t *Tree) Root() tree.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return nil
	}
	return t.root
}

func (t *Tree) newNode(tag string, attrs map[string]string) *Node {
	n := &Node{
		t:     t,
		id:    tree.NodeID(ids.Add(1)),
		tag:   strings.ToLower(tag),
		attrs: make(map[string]string, len(attrs)),
	}
	for k, v := range attrs {
		n.attrs[k] = v
	}
	return n
}

func (t *Tree) subscribe(fn func(mutation.Batch)) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nsub++
	t.subs[t.nsub] = fn
	return t.nsub
}

func (t *Tree) unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

// emit fans one event out to subscribers, outside the tree lock.
func (t *Tree) emit(ev mutation.Event) {
	t.mu.Lock()
	fns := make([]func(mutation.Batch), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	b := mutation.Batch{Events: []mutation.Event{ev}, Source: "memtree", At: time.Now()}
	for _, fn := range fns {
		fn(b)
	}
}

// Node is one in-memory node. The zero value is not usable; create
// nodes through the Append helpers.
type Node struct {
	t        *Tree
	id       tree.NodeID
	tag      string // "" for text nodes
	text     string
	attrs    map[string]string
	parent   *Node
	children []*Node
	attached bool

	// Region fields: inner is the embedded document, invisible to the
	// outer tree's source; accessible gates scoped attachment.
	inner      *Tree
	accessible bool
}

// ID implements tree.Node.
func (n *Node) ID() tree.NodeID { return n.id }

// Tag implements tree.Node.
func (n *Node) Tag() string { return n.tag }

// Attr implements tree.Node.
func (n *Node) Attr(name string) (string, bool) {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	v, ok := n.attrs[name]
	return v, ok
}

// Parent implements tree.Node.
func (n *Node) Parent() tree.Node {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Children implements tree.Node.
func (n *Node) Children() []tree.Node {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	out := make([]tree.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// Attached implements tree.Node.
func (n *Node) Attached() bool {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	return n.attached
}

// Visible implements tree.Node: hidden attribute or display:none
// anywhere up the parent chain hides the node.
func (n *Node) Visible() bool {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	for cur := n; cur != nil; cur = cur.parent {
		if _, hidden := cur.attrs["hidden"]; hidden {
			return false
		}
		if strings.Contains(cur.attrs["style"], "display:none") {
			return false
		}
	}
	return true
}

// Text returns the node's character data (text nodes only).
func (n *Node) Text() string {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	return n.text
}

// Append creates an element child, attaches it, and emits an insert
// event targeting n.
func (n *Node) Append(tag string, attrs map[string]string) *Node {
	child := n.SilentAppend(tag, attrs)
	n.t.emit(mutation.Event{
		Target: n,
		Kind:   mutation.KindInsert,
		Added:  []tree.Node{child},
	})
	return child
}

// SilentAppend attaches a child without emitting — an unobserved
// mutation the primary source never sees.
func (n *Node) SilentAppend(tag string, attrs map[string]string) *Node {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	child := n.t.newNode(tag, attrs)
	child.parent = n
	child.attached = n.attached
	n.children = append(n.children, child)
	return child
}

// AppendText creates a text child and emits a text-change event
// targeting the text node, matching how character-data mutations are
// reported by real adapters.
func (n *Node) AppendText(s string) *Node {
	n.t.mu.Lock()
	child := n.t.newNode("", nil)
	child.text = s
	child.parent = n
	child.attached = n.attached
	n.children = append(n.children, child)
	n.t.mu.Unlock()

	n.t.emit(mutation.Event{Target: child, Kind: mutation.KindText})
	return child
}

// SetText replaces a text node's data and emits a text-change event.
func (n *Node) SetText(s string) {
	n.t.mu.Lock()
	n.text = s
	n.t.mu.Unlock()
	n.t.emit(mutation.Event{Target: n, Kind: mutation.KindText})
}

// SetAttr sets an attribute and emits an attribute-change event.
func (n *Node) SetAttr(name, value string) {
	n.SilentSetAttr(name, value)
	n.t.emit(mutation.Event{Target: n, Kind: mutation.KindAttr, AttrName: name})
}

// SilentSetAttr sets an attribute without emitting.
func (n *Node) SilentSetAttr(name, value string) {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	n.attrs[name] = value
}

// DelAttr removes an attribute and emits an attribute-change event.
func (n *Node) DelAttr(name string) {
	n.SilentDelAttr(name)
	n.t.emit(mutation.Event{Target: n, Kind: mutation.KindAttr, AttrName: name})
}

// SilentDelAttr removes an attribute without emitting.
func (n *Node) SilentDelAttr(name string) {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	delete(n.attrs, name)
}

// Remove detaches n from its parent and emits a remove event targeting
// the parent. The detached subtree keeps its structure, like a DOM
// fragment held by a reference.
func (n *Node) Remove() {
	n.t.mu.Lock()
	p := n.parent
	if p == nil {
		n.t.mu.Unlock()
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
	var detach func(*Node)
	detach = func(cur *Node) {
		cur.attached = false
		for _, c := range cur.children {
			detach(c)
		}
	}
	detach(n)
	n.t.mu.Unlock()

	n.t.emit(mutation.Event{
		Target:  p,
		Kind:    mutation.KindRemove,
		Removed: []tree.Node{n},
	})
}

// AppendRegion creates an embedded region: the element is visible to
// the outer tree, its inner document is not. The region starts
// inaccessible; call SetAccessible(true) once "loaded".
func (n *Node) AppendRegion(tag string) *Node {
	r := n.Append(tag, nil)
	n.t.mu.Lock()
	r.inner = New()
	n.t.mu.Unlock()
	return r
}

// Inner returns the embedded document of a region node, or nil.
func (n *Node) Inner() *Tree {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	return n.inner
}

// SetAccessible flips whether a scoped source may attach to the region.
func (n *Node) SetAccessible(ok bool) {
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	n.accessible = ok
}

// Source adapts a Tree to the source contract.
type Source struct {
	t   *Tree
	mu  sync.Mutex
	sub int
}

// NewSource creates a source over t.
func NewSource(t *Tree) *Source { return &Source{t: t} }

// Subscribe implements source.Source.
func (s *Source) Subscribe(ctx context.Context, deliver func(mutation.Batch)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != 0 {
		return fmt.Errorf("memtree: already subscribed")
	}
	s.sub = s.t.subscribe(deliver)
	context.AfterFunc(ctx, func() { _ = s.Close() })
	return nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != 0 {
		s.t.unsubscribe(s.sub)
		s.sub = 0
	}
	return nil
}

// Factory hands out scoped sources for accessible regions.
type Factory struct{}

// Scoped implements source.Factory.
func (Factory) Scoped(root tree.Node) (source.Source, error) {
	n, ok := root.(*Node)
	if !ok {
		return nil, fmt.Errorf("memtree: foreign node %T", root)
	}
	n.t.mu.Lock()
	inner, accessible := n.inner, n.accessible
	n.t.mu.Unlock()
	if inner == nil {
		return nil, fmt.Errorf("memtree: node <%s> is not a region", n.tag)
	}
	if !accessible {
		return nil, fmt.Errorf("memtree: region <%s> is not accessible", n.tag)
	}
	return NewSource(inner), nil
}
