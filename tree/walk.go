package tree

// WalkLimits bounds a traversal. Pathological trees (cyclic adapters,
// runaway generated content) truncate instead of hanging.
type WalkLimits struct {
	// MaxNodes is the visit ceiling. Default: 10000.
	MaxNodes int
	// MaxDepth is the depth ceiling. Default: 100.
	MaxDepth int
}

func (l *WalkLimits) defaults() {
	if l.MaxNodes <= 0 {
		l.MaxNodes = 10000
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = 100
	}
}

// Walk visits root and its descendants iteratively (explicit stack, no
// recursion) in document order, calling visit for each node. It stops
// early when visit returns false. The return value reports whether the
// traversal completed without hitting a limit; callers log truncation,
// they do not fail on it.
func Walk(root Node, limits WalkLimits, visit func(Node) bool) bool {
	if root == nil {
		return true
	}
	limits.defaults()

	type frame struct {
		node  Node
		depth int
	}

	stack := []frame{{root, 0}}
	visited := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited > limits.MaxNodes {
			return false
		}
		if !visit(f.node) {
			return true
		}
		if f.depth >= limits.MaxDepth {
			return false
		}

		kids := f.node.Children()
		// Push in reverse so document order pops first.
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.depth + 1})
		}
	}
	return true
}

// Collect walks root and returns every node for which match is true,
// up to the walk limits.
func Collect(root Node, limits WalkLimits, match func(Node) bool) []Node {
	var out []Node
	Walk(root, limits, func(n Node) bool {
		if match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}
