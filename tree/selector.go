package tree

import (
	"fmt"
	"strings"
)

// Selector is a parsed cheap structural predicate. Supported grammar is
// deliberately small — compound simple selectors joined by commas:
//
//	tag  #id  .class  [attr]  [attr=value]  *
//
// and any concatenation of those, e.g. "button.primary[disabled]".
// Combinators (descendant, child, sibling) are not supported: predicate
// evaluation must stay O(1) per node so the register catch-up scan and
// the dispatch match loop stay cheap.
type Selector struct {
	raw    string
	groups []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCheck
}

type attrCheck struct {
	name  string
	value string
	exact bool
}

// ParseSelector parses a selector string. Empty input yields a selector
// matching every element node.
func ParseSelector(s string) (*Selector, error) {
	sel := &Selector{raw: s}
	s = strings.TrimSpace(s)
	if s == "" {
		return sel, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.ContainsAny(part, " >~+") {
			return nil, fmt.Errorf("selector %q: combinators are not supported", part)
		}
		g, err := parseCompound(part)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", part, err)
		}
		sel.groups = append(sel.groups, g)
	}
	return sel, nil
}

func parseCompound(s string) (compound, error) {
	var g compound
	i := 0
	for i < len(s) {
		switch s[i] {
		case '*':
			i++
		case '#':
			j := simpleEnd(s, i+1)
			if j == i+1 {
				return g, fmt.Errorf("empty id")
			}
			g.id = s[i+1 : j]
			i = j
		case '.':
			j := simpleEnd(s, i+1)
			if j == i+1 {
				return g, fmt.Errorf("empty class")
			}
			g.classes = append(g.classes, s[i+1:j])
			i = j
		case '[':
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				return g, fmt.Errorf("unterminated attribute")
			}
			body := s[i+1 : i+j]
			if name, value, found := strings.Cut(body, "="); found {
				if name == "" {
					return g, fmt.Errorf("empty attribute name")
				}
				g.attrs = append(g.attrs, attrCheck{
					name:  name,
					value: strings.Trim(value, `"'`),
					exact: true,
				})
			} else {
				if body == "" {
					return g, fmt.Errorf("empty attribute name")
				}
				g.attrs = append(g.attrs, attrCheck{name: body})
			}
			i += j + 1
		default:
			j := simpleEnd(s, i)
			if j == i {
				return g, fmt.Errorf("unexpected character %q", s[i])
			}
			g.tag = strings.ToLower(s[i:j])
			i = j
		}
	}
	return g, nil
}

func simpleEnd(s string, from int) int {
	for i := from; i < len(s); i++ {
		c := s[i]
		if c == '#' || c == '.' || c == '[' || c == '*' {
			return i
		}
	}
	return len(s)
}

// Match reports whether n satisfies the selector. Non-element nodes
// never match.
func (sel *Selector) Match(n Node) bool {
	if n == nil || n.Tag() == "" {
		return false
	}
	if len(sel.groups) == 0 {
		return true
	}
	for _, g := range sel.groups {
		if g.match(n) {
			return true
		}
	}
	return false
}

// String returns the original selector text.
func (sel *Selector) String() string { return sel.raw }

func (g compound) match(n Node) bool {
	if g.tag != "" && n.Tag() != g.tag {
		return false
	}
	if g.id != "" {
		id, ok := n.Attr("id")
		if !ok || id != g.id {
			return false
		}
	}
	if len(g.classes) > 0 {
		cls, _ := n.Attr("class")
		have := strings.Fields(cls)
		for _, want := range g.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, ac := range g.attrs {
		v, ok := n.Attr(ac.name)
		if !ok {
			return false
		}
		if ac.exact && v != ac.value {
			return false
		}
	}
	return true
}
