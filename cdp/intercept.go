package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domrelay/mutation"
	"github.com/hazyhaar/domrelay/tree"
)

const bindingName = "__domrelay_binding"

// interceptJS hooks the low-level tree-editing entry points and reports
// the affected container over the binding as a CSS path. It is a
// redundant signal for mutations CDP already reports, and the only
// near-real-time signal for edits CDP occasionally misses; either way
// the collector deduplicates and reconciliation remains the guarantee.
const interceptJS = `(() => {
	if (window.__domrelay_hooked) return;
	window.__domrelay_hooked = true;

	const cssPath = (el) => {
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && node !== document.documentElement) {
			let idx = 1;
			let sib = node.previousElementSibling;
			while (sib) {
				if (sib.tagName === node.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(node.tagName.toLowerCase() + ":nth-of-type(" + idx + ")");
			node = node.parentElement;
		}
		parts.unshift("html");
		return parts.join(" > ");
	};

	const report = (op, el) => {
		try {
			if (!el || el.nodeType !== 1) el = el && el.parentElement;
			if (!el) return;
			window.` + bindingName + `(JSON.stringify({ op: op, path: cssPath(el) }));
		} catch (e) {}
	};

	const hook = (proto, name) => {
		const orig = proto[name];
		if (!orig) return;
		proto[name] = function (...args) {
			const out = orig.apply(this, args);
			report(name, this);
			return out;
		};
	};

	for (const name of ["appendChild", "insertBefore", "removeChild", "replaceChild"]) {
		hook(Node.prototype, name);
	}
	for (const name of ["insertAdjacentHTML", "replaceChildren", "append", "prepend"]) {
		hook(Element.prototype, name);
	}

	const desc = Object.getOwnPropertyDescriptor(Element.prototype, "innerHTML");
	if (desc && desc.set) {
		Object.defineProperty(Element.prototype, "innerHTML", {
			...desc,
			set(value) {
				desc.set.call(this, value);
				report("innerHTML", this);
			},
		});
	}
})();`

// startIntercept installs the binding and the hook script, then listens
// for reports, resolving each CSS path back to a node and re-offering
// its subtree to the collector.
func (s *Source) startIntercept(ctx context.Context, deliver func(mutation.Batch)) error {
	page := s.tr.page

	err := proto.RuntimeAddBinding{Name: bindingName}.Call(page)
	if err != nil {
		return fmt.Errorf("cdp: addBinding: %w", err)
	}
	if _, err := page.Eval(interceptJS); err != nil {
		return fmt.Errorf("cdp: inject hooks: %w", err)
	}

	go page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var rec struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &rec); err != nil {
			return
		}

		n := s.resolve(rec.Path)
		if n == nil {
			return
		}
		deliver(mutation.Batch{
			Events: []mutation.Event{{
				Target: n,
				Kind:   mutation.KindInsert,
				Added:  []tree.Node{n},
			}},
			Source: s.cfg.Label + ":hook",
			At:     time.Now(),
		})
	})()

	return nil
}

// resolve maps a CSS path from the page back to a mirror node.
func (s *Source) resolve(path string) tree.Node {
	if path == "" {
		return nil
	}
	s.tr.mu.RLock()
	root := s.tr.root
	s.tr.mu.RUnlock()
	if root == 0 {
		return nil
	}

	res, err := proto.DOMQuerySelector{NodeID: root, Selector: path}.Call(s.tr.page)
	if err != nil || res.NodeID == 0 {
		return nil
	}
	return s.tr.nodeOf(res.NodeID)
}
