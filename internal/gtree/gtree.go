// Package gtree implements the generic, arity-bounded, summary-augmented
// B-tree that backs the insertion-run index: a self-balancing tree whose
// leaves are user-supplied values, whose internal nodes cache a monoidal
// summary of their subtree, and which supports positional descent by any
// number of metrics over that summary.
//
// The tree never removes a leaf: deletions mark leaves (or whole subtrees)
// as contributing zero to the relevant metric and leave them structurally
// in place, which is what lets the insertion-run index keep every run
// addressable by its anchor forever.
package gtree

import "golang.org/x/exp/slices"

// DefaultArity is the branching factor used when a caller doesn't specify
// one; it matches the default replica's arity.
const DefaultArity = 32

// MinArity is the smallest arity this tree will accept; NewWithArity
// panics below it.
const MinArity = 4

// Summary is a monoidal value cached on every tree node: the zero value is
// the identity, Add must be commutative, and Sub must invert Add so that a
// leaf's old contribution can be removed from an ancestor's cached summary
// during incremental recomputation.
type Summary[S any] interface {
	comparable
	Add(other S) S
	Sub(other S) S
}

// Metric projects a Summary to an ordered scalar used to descend the tree.
// For any node N with children C_i, Measure(summary(N)) must equal the sum
// of Measure(summary(C_i)).
type Metric[S any] interface {
	Measure(s S) int64
}

// Leaf is the contract a tree's leaf values must satisfy: the ability to
// summarize themselves. Leaves are stored and handed back to callers by
// pointer so that InsertCallback/DeleteRangeCallback/etc. can mutate them
// in place.
type Leaf[S any] interface {
	Summarize() S
}

// Node is either an internal node (children != nil) or a leaf
// (leaf != nil); the two are mutually exclusive. The zero Node is not
// valid; construct nodes via newLeafNode or newInternalNode.
type Node[L Leaf[S], S Summary[S]] struct {
	leaf     *L
	children []*Node[L, S]
	summary  S
}

func (n *Node[L, S]) isLeaf() bool { return n.leaf != nil }

// resummarize recomputes n's cached summary from its children. Must be
// called after any mutation to n.children or to a child's own summary.
func (n *Node[L, S]) resummarize() {
	var sum S
	for _, c := range n.children {
		sum = sum.Add(c.summary)
	}
	n.summary = sum
}

func newLeafNode[L Leaf[S], S Summary[S]](leaf *L) *Node[L, S] {
	return &Node[L, S]{leaf: leaf, summary: (*leaf).Summarize()}
}

func newInternalNode[L Leaf[S], S Summary[S]](children []*Node[L, S]) *Node[L, S] {
	n := &Node[L, S]{children: children}
	n.resummarize()
	return n
}

// Tree is the generic, arity-bounded, summary-augmented B-tree.
type Tree[L Leaf[S], S Summary[S]] struct {
	root  *Node[L, S]
	arity int
}

// New creates a tree holding a single leaf, with the default arity.
func New[L Leaf[S], S Summary[S]](leaf L) *Tree[L, S] {
	return NewWithArity[L, S](DefaultArity, leaf)
}

// NewWithArity creates a tree holding a single leaf with the given arity.
// It panics if arity is below MinArity.
func NewWithArity[L Leaf[S], S Summary[S]](arity int, leaf L) *Tree[L, S] {
	if arity < MinArity {
		panic("gtree: arity must be at least MinArity")
	}
	return &Tree[L, S]{root: newLeafNode[L, S](&leaf), arity: arity}
}

// Summary returns the root's cached summary, i.e. the monoidal combination
// of every leaf in the tree.
func (t *Tree[L, S]) Summary() S {
	return t.root.summary
}

// Measure projects the tree's summary through the given metric.
func (t *Tree[L, S]) Measure(m Metric[S]) int64 {
	return m.Measure(t.root.summary)
}

// Clone returns a deep copy of the tree: every node and leaf is duplicated,
// so mutating the clone never affects the original.
func (t *Tree[L, S]) Clone() *Tree[L, S] {
	return &Tree[L, S]{root: cloneNode[L, S](t.root), arity: t.arity}
}

func cloneNode[L Leaf[S], S Summary[S]](n *Node[L, S]) *Node[L, S] {
	if n.isLeaf() {
		leaf := *n.leaf
		return &Node[L, S]{leaf: &leaf, summary: n.summary}
	}
	children := make([]*Node[L, S], len(n.children))
	for i, c := range n.children {
		children[i] = cloneNode[L, S](c)
	}
	return &Node[L, S]{children: children, summary: n.summary}
}

// spliceChildren inserts zero or more new children into n starting at idx,
// then splits n if it now exceeds the tree's arity. It returns the extra
// sibling node produced by a split, or nil if none was needed.
func (t *Tree[L, S]) spliceChildren(n *Node[L, S], idx int, newChildren []*Node[L, S]) *Node[L, S] {
	if len(newChildren) == 0 {
		return nil
	}
	n.children = slices.Insert(n.children, idx, newChildren...)
	return t.splitIfNeeded(n)
}

// insertTwo inserts child1 at idx1 and child2 at idx2 (idx1 <= idx2, as
// they were computed against the same pre-insertion child slice), applying
// the insertions in descending index order so that inserting at idx2
// doesn't shift idx1 out from under the first insertion. Either child may
// be nil. Splits n at most once, after both insertions have landed.
func (t *Tree[L, S]) insertTwo(n *Node[L, S], idx1 int, child1 *Node[L, S], idx2 int, child2 *Node[L, S]) *Node[L, S] {
	if child2 != nil {
		n.children = slices.Insert(n.children, idx2, child2)
	}
	if child1 != nil {
		n.children = slices.Insert(n.children, idx1, child1)
	}
	if child1 == nil && child2 == nil {
		return nil
	}
	return t.splitIfNeeded(n)
}

// splitIfNeeded splits n into two siblings of size ceil(k/2) and
// floor(k/2), left-biased, where k is n's child count, whenever k exceeds
// the tree's arity (by one after a single insertion, by two when a leaf
// callback adds two leaves at once). The right-hand sibling is returned to the caller, which is
// responsible for inserting it as a sibling of n in n's parent (or
// promoting a new root, if n is the root).
func (t *Tree[L, S]) splitIfNeeded(n *Node[L, S]) *Node[L, S] {
	if len(n.children) <= t.arity {
		return nil
	}
	total := len(n.children)
	leftSize := (total + 1) / 2
	right := append([]*Node[L, S](nil), n.children[leftSize:]...)
	n.children = n.children[:leftSize]
	n.resummarize()
	return newInternalNode[L, S](right)
}

// deleteEntireSubtree marks every leaf beneath n as deleted via
// deleteWhole, leaving the tree structurally intact (same node count, same
// shape) and recomputing cached summaries bottom-up from the actually
// tombstoned leaves. This costs time proportional to the subtree's size
// rather than O(log n), but it's the only way to keep every node's cached
// summary equal to the sum of its children's, which AssertInvariants
// checks and Encode relies on to know which leaves are still alive.
func deleteEntireSubtree[L Leaf[S], S Summary[S]](n *Node[L, S], deleteWhole func(*L)) {
	if n.isLeaf() {
		deleteWhole(n.leaf)
		n.summary = (*n.leaf).Summarize()
		return
	}
	for _, c := range n.children {
		deleteEntireSubtree[L, S](c, deleteWhole)
	}
	n.resummarize()
}
