package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/tree"
)

// SourceConfig configures a CDP source.
type SourceConfig struct {
	// Tree is the mirror to keep in sync. Required.
	Tree *Tree
	// Intercept additionally injects a script that hooks low-level
	// tree-editing calls and reports them over a binding. Optional:
	// nothing downstream depends on it succeeding.
	Intercept bool
	// Label names this source in batches ("cdp" when empty).
	Label string

	Logger *slog.Logger
}

// Source subscribes to CDP DOM events on one page and emits change
// batches. One Source per page (or per embedded frame via Factory).
type Source struct {
	cfg    SourceConfig
	tr     *Tree
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSource creates a Source over cfg.Tree's page.
func NewSource(cfg SourceConfig) *Source {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Label == "" {
		cfg.Label = "cdp"
	}
	return &Source{cfg: cfg, tr: cfg.Tree, logger: cfg.Logger}
}

// Subscribe implements source.Source: it enables the DOM domain,
// populates the mirror, and starts the event listener goroutine.
func (s *Source) Subscribe(ctx context.Context, deliver func(mutation.Batch)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("cdp: already subscribed")
	}

	if err := (proto.DOMEnable{}).Call(s.tr.page); err != nil {
		return fmt.Errorf("cdp: DOM.enable: %w", err)
	}
	if err := s.tr.Init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.cfg.Intercept {
		// Best-effort by contract: reconciliation covers whatever the
		// hooks cannot see.
		if err := s.startIntercept(ctx, deliver); err != nil {
			s.logger.Warn("cdp: interception unavailable", "error", err)
		}
	}

	go s.listen(ctx, deliver)
	return nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// listen translates CDP DOM events into change batches. Each event
// becomes its own single-event batch: coalescing is the engine's job.
func (s *Source) listen(ctx context.Context, deliver func(mutation.Batch)) {
	page := s.tr.page
	emit := func(ev mutation.Event) {
		deliver(mutation.Batch{
			Events: []mutation.Event{ev},
			Source: s.cfg.Label,
			At:     time.Now(),
		})
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			s.tr.addNode(e.ParentNodeID, e.Node)
			emit(mutation.Event{
				Target: s.tr.nodeOf(e.ParentNodeID),
				Kind:   mutation.KindInsert,
				Added:  []tree.Node{s.tr.nodeOf(e.Node.NodeID)},
			})
		},

		func(e *proto.DOMChildNodeRemoved) {
			ids := s.tr.removeNode(e.NodeID)
			removed := make([]tree.Node, len(ids))
			for i, id := range ids {
				removed[i] = s.tr.nodeOf(id)
			}
			emit(mutation.Event{
				Target:  s.tr.nodeOf(e.ParentNodeID),
				Kind:    mutation.KindRemove,
				Removed: removed,
			})
		},

		func(e *proto.DOMAttributeModified) {
			s.tr.setAttr(e.NodeID, e.Name, e.Value)
			emit(mutation.Event{
				Target:   s.tr.nodeOf(e.NodeID),
				Kind:     mutation.KindAttr,
				AttrName: e.Name,
			})
		},

		func(e *proto.DOMAttributeRemoved) {
			s.tr.delAttr(e.NodeID, e.Name)
			emit(mutation.Event{
				Target:   s.tr.nodeOf(e.NodeID),
				Kind:     mutation.KindAttr,
				AttrName: e.Name,
			})
		},

		func(e *proto.DOMCharacterDataModified) {
			emit(mutation.Event{
				Target: s.tr.nodeOf(e.NodeID),
				Kind:   mutation.KindText,
			})
		},

		func(e *proto.DOMDocumentUpdated) {
			// The whole document was replaced (document.open/write).
			// Rebuild the mirror and report the new root as inserted;
			// the collector re-expands it with processed-set skips.
			if err := s.tr.Init(); err != nil {
				s.logger.Error("cdp: rebuild after documentUpdated", "error", err)
				return
			}
			root := s.tr.Root()
			if root == nil {
				return
			}
			emit(mutation.Event{
				Target: root,
				Kind:   mutation.KindInsert,
				Added:  []tree.Node{root},
			})
		},
	)

	wait()
}
