package idgen

import (
	"strings"
	"testing"
)

func TestDefaultIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := Default()
		if !strings.HasPrefix(id, "wat_") {
			t.Fatalf("id %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7IsSortable(t *testing.T) {
	gen := UUIDv7()
	a, b := gen(), gen()
	if a >= b {
		t.Fatalf("ids not monotonic: %q then %q", a, b)
	}
}
