// Package source defines the input adapters feeding change batches into
// the domrelay engine. The engine requires only eventual delivery: a
// source that misses mutations is backstopped by reconciliation, never
// by any correctness property of the engine itself.
package source

import (
	"context"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/tree"
)

// Source is a change-notification adapter for one observed region.
type Source interface {
	// Subscribe starts delivery of batches to deliver. It returns once
	// the subscription is established; delivery happens on the source's
	// own goroutines until ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, deliver func(mutation.Batch)) error

	// Close stops delivery and releases adapter resources. Idempotent.
	Close() error
}

// Factory creates sources scoped to embedded regions — sub-trees the
// primary source cannot see into. Scoped returns an error when the
// region is inaccessible (cross-origin, not yet loaded); the caller
// degrades to leaving that region unmonitored.
type Factory interface {
	Scoped(root tree.Node) (Source, error)
}
