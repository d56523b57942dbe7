package tree

// interactiveTags are elements whose meaning depends on their text
// content. Text changes inside them retarget dispatch to the element
// itself (and its siblings, since label text affects sibling-relative
// matching).
var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"option":   true,
	"textarea": true,
	"label":    true,
	"summary":  true,
	"details":  true,
}

// interactiveRoles are ARIA roles treated the same as interactive tags.
var interactiveRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"checkbox": true,
	"radio":    true,
	"tab":      true,
	"menuitem": true,
	"option":   true,
	"switch":   true,
}

// visibilityAttrs are attributes whose change can flip an entire
// subtree in or out of rendering, so an attribute mutation on them
// re-expands descendants.
var visibilityAttrs = map[string]bool{
	"class":  true,
	"style":  true,
	"hidden": true,
}

// Interactive reports whether n is an actionable control: an element
// whose interpretation depends on its own text.
func Interactive(n Node) bool {
	if n == nil {
		return false
	}
	if interactiveTags[n.Tag()] {
		return true
	}
	if role, ok := n.Attr("role"); ok {
		return interactiveRoles[role]
	}
	return false
}

// InteractiveAncestor walks up from n to the nearest interactive
// element, n included. Returns nil when no ancestor qualifies.
func InteractiveAncestor(n Node) Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if Interactive(cur) {
			return cur
		}
	}
	return nil
}

// Volatile reports whether n is marked as holding dynamically-replaced
// content. Volatile containers are exempt from the already-processed
// skip rule: every insert under them is re-dispatched.
func Volatile(n Node) bool {
	if n == nil {
		return false
	}
	if _, ok := n.Attr("aria-live"); ok {
		return true
	}
	if _, ok := n.Attr("data-volatile"); ok {
		return true
	}
	return false
}

// AffectsVisibility reports whether a change to the named attribute can
// newly qualify previously-hidden descendants.
func AffectsVisibility(name string) bool {
	return visibilityAttrs[name]
}
