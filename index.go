package scxmlgo

import (
	"fmt"
	"strings"
)

// Index is the flat map of canonical dotted paths to State/Parallel/Final
// nodes, built once at load time (see spec.md §3 "State-path identity").
type Index struct {
	root    *Node
	byPath  map[string]*Node
	ordered []string // document order, shallow-first
}

// BuildIndex walks the tree rooted at root, assigns canonical dotted paths
// to every State/Parallel/Final node, and returns the resulting Index. It
// also back-links each such node to its nearest State/Parallel/Final
// ancestor via Node.parent.
func BuildIndex(root *Node) (*Index, error) {
	if root.Kind != KindRoot {
		return nil, &ParseError{Errors: []string{"document root must be <scxml>"}}
	}
	idx := &Index{root: root, byPath: make(map[string]*Node)}
	var walk func(n *Node, prefix string, parent *Node) error
	walk = func(n *Node, prefix string, parent *Node) error {
		path := prefix
		switch n.Kind {
		case KindState, KindParallel, KindFinal:
			if n.ID == "" {
				return &ParseError{Errors: []string{"state id must be non-empty"}}
			}
			if prefix == "" {
				path = n.ID
			} else {
				path = prefix + "." + n.ID
			}
			if _, exists := idx.byPath[path]; exists {
				return &ParseError{Errors: []string{fmt.Sprintf("duplicate state id in scope: %s", path)}}
			}
			n.path = path
			n.parent = parent
			idx.byPath[path] = n
			idx.ordered = append(idx.ordered, path)
			parent = n
		}
		for _, c := range n.Children {
			if err := walk(c, path, parent); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, "", nil); err != nil {
		return nil, err
	}
	return idx, nil
}

// Lookup resolves a dotted path to its node, or (nil, false).
func (idx *Index) Lookup(path string) (*Node, bool) {
	n, ok := idx.byPath[path]
	return n, ok
}

// MustLookup resolves a dotted path or returns a path-not-found error,
// mirroring spec.md §7's "Configuration" error category.
func (idx *Index) MustLookup(path string) (*Node, error) {
	n, ok := idx.byPath[path]
	if !ok {
		return nil, &ConfigurationError{Path: path}
	}
	return n, nil
}

// Paths returns all indexed paths in document order (shallow-first).
func (idx *Index) Paths() []string {
	out := make([]string, len(idx.ordered))
	copy(out, idx.ordered)
	return out
}

// Root returns the indexed document's root node.
func (idx *Index) Root() *Node { return idx.root }

// LCCA returns the Longest Common Compound Ancestor path of two dotted
// paths: the deepest common prefix aligned on '.' boundaries. Returns ""
// if there is no common ancestor (including when either path is "").
//
// Laws (spec.md §8): LCCA(a,a) = a; LCCA(a,b) = LCCA(b,a); LCCA is always a
// prefix of both arguments on dot boundaries.
func LCCA(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	i := 0
	for i < n && as[i] == bs[i] {
		i++
	}
	if i == 0 {
		return ""
	}
	return strings.Join(as[:i], ".")
}

// ancestorPaths returns every ancestor path of path, including path itself,
// outermost first: "a.b.c" -> ["a", "a.b", "a.b.c"].
func ancestorPaths(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, ".")
	out := make([]string, len(segs))
	cur := ""
	for i, s := range segs {
		if cur != "" {
			cur += "."
		}
		cur += s
		out[i] = cur
	}
	return out
}

// isStrictDescendant reports whether child is a strict descendant path of
// ancestor ("a.b.c" is a descendant of "a" and "a.b", not of "a.b.c" or "x").
func isStrictDescendant(child, ancestor string) bool {
	if ancestor == "" {
		return child != ""
	}
	return strings.HasPrefix(child, ancestor+".")
}
