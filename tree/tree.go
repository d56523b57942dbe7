// Package tree defines the contract between domrelay and the observed
// content tree. The engine never touches a concrete DOM type: every
// adapter (CDP, in-memory, future backends) exposes its nodes through
// the Node interface and its document through the Tree interface.
package tree

// NodeID is a stable identity token for a node, valid for the node's
// lifetime in the tree. Equality of IDs is equality of nodes; there is
// no structural comparison anywhere in domrelay.
type NodeID int64

// Node is an opaque handle to a node in the observed tree. All methods
// must be cheap: the engine calls them on the hot dispatch path.
type Node interface {
	// ID returns the stable identity token.
	ID() NodeID

	// Tag returns the lowercase element name, or "" for non-element
	// nodes (text, comment).
	Tag() string

	// Attr returns the value of the named attribute and whether it is set.
	Attr(name string) (string, bool)

	// Parent returns the parent node, or nil at the root.
	Parent() Node

	// Children returns the child nodes in document order.
	Children() []Node

	// Attached reports whether the node is still connected to its tree.
	// Detached nodes are stale: the dispatcher skips them.
	Attached() bool

	// Visible reports whether the node currently participates in
	// rendering. Adapters may approximate (attribute-based checks are
	// fine); an occasional false positive only costs a redundant
	// dispatch, never a missed one.
	Visible() bool
}

// Tree is the observed document. Adapters own the lifecycle of the
// underlying structure; the engine only ever reads.
type Tree interface {
	// Root returns the document root, or nil if the tree is gone.
	Root() Node
}
