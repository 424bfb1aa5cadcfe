package gtree

import "fmt"

// VisitLeaves calls f on every leaf in the tree, left to right, passing a
// pointer that aliases the tree's own storage so callers may invoke
// read-only or invariant-preserving leaf methods (e.g. rebuilding a side
// index). f must not mutate leaf content in a way that changes its summary
// without also updating ancestor summaries; use the tree's own mutators for
// that instead.
func (t *Tree[L, S]) VisitLeaves(f func(leaf *L)) {
	visitNode(t.root, f)
}

func visitNode[L Leaf[S], S Summary[S]](n *Node[L, S], f func(leaf *L)) {
	if n.isLeaf() {
		f(n.leaf)
		return
	}
	for _, c := range n.children {
		visitNode(c, f)
	}
}

// Leaves returns a flattened, left-to-right copy of every leaf in the
// tree. Intended for tests and debug dumps, not hot paths.
func (t *Tree[L, S]) Leaves() []L {
	var out []L
	t.VisitLeaves(func(leaf *L) { out = append(out, *leaf) })
	return out
}

// AssertInvariants walks the whole tree and checks the two structural
// invariants every mutation must preserve: that every internal node's
// cached summary equals the monoidal sum of its children's summaries, and
// that every non-root internal node holds between ceil(arity/2) and arity
// children (the root is only bounded above, and may hold as few as one
// child, or none if it is itself a leaf). It returns the first violation
// found, or nil.
func (t *Tree[L, S]) AssertInvariants() error {
	return checkNode(t.root, t.arity, true)
}

func checkNode[L Leaf[S], S Summary[S]](n *Node[L, S], arity int, isRoot bool) error {
	if n.isLeaf() {
		return nil
	}

	min := (arity + 1) / 2
	if !isRoot {
		if len(n.children) < min {
			return fmt.Errorf("gtree: internal node has %d children, want >= %d", len(n.children), min)
		}
	}
	if len(n.children) > arity {
		return fmt.Errorf("gtree: internal node has %d children, want <= %d", len(n.children), arity)
	}
	if !isRoot && len(n.children) == 0 {
		return fmt.Errorf("gtree: non-root internal node has no children")
	}

	var want S
	for _, c := range n.children {
		want = want.Add(c.summary)
		if err := checkNode(c, arity, false); err != nil {
			return err
		}
	}
	if n.summary != want {
		return fmt.Errorf("gtree: cached summary %v does not match recomputed summary %v", n.summary, want)
	}
	return nil
}
