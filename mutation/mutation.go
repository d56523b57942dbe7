// Package mutation defines the change-report types flowing from source
// adapters into the domrelay engine. This is the public input contract:
// any adapter (CDP, in-memory, custom) produces Batches of Events.
package mutation

import (
	"time"

	"github.com/hazyhaar/domrelay/tree"
)

// Kind is the type of change observed.
type Kind string

const (
	KindInsert Kind = "insert" // nodes added under Target
	KindRemove Kind = "remove" // nodes removed from under Target
	KindAttr   Kind = "attr"   // attribute changed on Target
	KindText   Kind = "text"   // character data changed on Target
)

// Event is a single raw change notification. Events within a batch are
// unordered; the collector deduplicates overlapping reports, so an
// adapter may report the same node any number of times.
type Event struct {
	// Target is the node the change happened on (for inserts and
	// removes, the parent of the affected nodes).
	Target tree.Node

	// Kind classifies the change.
	Kind Kind

	// Added holds the roots of newly-inserted subtrees (KindInsert).
	Added []tree.Node

	// Removed holds the roots of removed subtrees (KindRemove).
	Removed []tree.Node

	// AttrName is the changed attribute (KindAttr).
	AttrName string
}

// Batch is one delivery from a source adapter. Sources are only
// required to deliver batches eventually after a mutation, never
// synchronously.
type Batch struct {
	// Events in arrival order. Order carries no meaning.
	Events []Event

	// Source labels the producing adapter for logging ("cdp",
	// "region:<id>", "reconcile").
	Source string

	// At is the adapter-side collection time.
	At time.Time
}
