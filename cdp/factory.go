package cdp

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domrelay/source"
	"github.com/hazyhaar/domrelay/tree"
)

// Factory creates scoped sources for embedded frames. Same-process
// frames are already pierced by the primary mirror; this path exists
// for out-of-process frames, which CDP reports as separate targets.
// Cross-origin restrictions surface as an attach error, which the
// region monitor treats as "leave unmonitored".
type Factory struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewFactory creates a Factory bound to the top-level page.
func NewFactory(page *rod.Page, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{page: page, logger: logger}
}

// Scoped implements source.Factory.
func (f *Factory) Scoped(root tree.Node) (source.Source, error) {
	n, ok := root.(*node)
	if !ok {
		return nil, fmt.Errorf("cdp: foreign node %T", root)
	}
	if n.Tag() != "iframe" {
		return nil, fmt.Errorf("cdp: <%s> has no separate frame target", n.Tag())
	}

	el, err := f.page.ElementFromNode(&proto.DOMNode{NodeID: n.id})
	if err != nil {
		return nil, fmt.Errorf("cdp: element from node: %w", err)
	}
	frame, err := el.Frame()
	if err != nil {
		// Cross-origin frames land here.
		return nil, fmt.Errorf("cdp: frame inaccessible: %w", err)
	}

	t := NewTree(frame)
	return NewSource(SourceConfig{
		Tree:   t,
		Label:  fmt.Sprintf("cdp:frame:%d", n.id),
		Logger: f.logger,
	}), nil
}
