package tree_test

import (
	"testing"

	"github.com/hazyhaar/domrelay/internal/memtree"
	"github.com/hazyhaar/domrelay/tree"
)

func TestSelectorMatch(t *testing.T) {
	mt := memtree.New()
	body := mt.Root().(*memtree.Node).SilentAppend("body", nil)
	btn := body.SilentAppend("button", map[string]string{
		"id":       "submit",
		"class":    "btn btn-primary",
		"disabled": "",
		"type":     "submit",
	})
	div := body.SilentAppend("div", map[string]string{"class": "card"})
	txt := div.SilentAppend("", nil)

	cases := []struct {
		sel  string
		n    tree.Node
		want bool
	}{
		{"button", btn, true},
		{"button", div, false},
		{"*", div, true},
		{"*", txt, false}, // non-element nodes never match
		{"", div, true},   // empty selector matches every element
		{"#submit", btn, true},
		{"#submit", div, false},
		{".btn", btn, true},
		{".btn-primary", btn, true},
		{".btn.btn-primary", btn, true},
		{".btn.missing", btn, false},
		{"[disabled]", btn, true},
		{"[disabled]", div, false},
		{"[type=submit]", btn, true},
		{`[type="submit"]`, btn, true},
		{"[type=reset]", btn, false},
		{"button.btn#submit[type=submit]", btn, true},
		{"div.btn", btn, false},
		{"div, button", btn, true},
		{"span, p", btn, false},
	}
	for _, tc := range cases {
		sel, err := tree.ParseSelector(tc.sel)
		if err != nil {
			t.Fatalf("ParseSelector(%q): %v", tc.sel, err)
		}
		if got := sel.Match(tc.n); got != tc.want {
			t.Fatalf("Match(%q, <%s>) = %v, want %v", tc.sel, tc.n.Tag(), got, tc.want)
		}
	}
}

func TestSelectorParseErrors(t *testing.T) {
	for _, bad := range []string{
		"div > span",
		"div span",
		"div ~ p",
		"div + p",
		"#",
		".",
		"[unterminated",
		"[]",
		"[=value]",
	} {
		if _, err := tree.ParseSelector(bad); err == nil {
			t.Fatalf("ParseSelector(%q): expected an error", bad)
		}
	}
}

func TestSelectorString(t *testing.T) {
	sel, err := tree.ParseSelector("div.card, span")
	if err != nil {
		t.Fatalf("ParseSelector: %v", err)
	}
	if got := sel.String(); got != "div.card, span" {
		t.Fatalf("String() = %q", got)
	}
}
