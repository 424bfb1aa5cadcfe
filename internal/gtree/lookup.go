package gtree

// OffsetOf returns the metric-offset at which the leaf identified by target
// starts, and whether target was found in the tree at all. Comparison is by
// pointer identity, so target must be a pointer previously obtained from
// this same tree (e.g. via VisitLeaves or a callback argument) rather than
// a copy.
func (t *Tree[L, S]) OffsetOf(m Metric[S], target *L) (int64, bool) {
	return offsetOfNode(t.root, m, target, 0)
}

func offsetOfNode[L Leaf[S], S Summary[S]](n *Node[L, S], m Metric[S], target *L, base int64) (int64, bool) {
	if n.isLeaf() {
		if n.leaf == target {
			return base, true
		}
		return 0, false
	}
	offset := base
	for _, c := range n.children {
		if off, ok := offsetOfNode(c, m, target, offset); ok {
			return off, true
		}
		offset += m.Measure(c.summary)
	}
	return 0, false
}
