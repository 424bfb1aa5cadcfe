package gtree

// DeleteRangeCallback is invoked when both endpoints of a delete range fall
// within the same leaf. It may mutate *leaf in place and returns up to two
// extra leaves — conventionally the deleted middle piece and the
// surviving tail — inserted immediately after leaf, in that order.
type DeleteRangeCallback[L any] func(leaf *L, localStart, localEnd int64) (deletedMiddle, tail *L)

// DeleteFromCallback marks everything at and after localOffset (within
// leaf) as deleted, mutates leaf in place to keep only the alive prefix,
// and returns the deleted suffix as a new leaf, or nil if localOffset was
// at the leaf's right boundary.
type DeleteFromCallback[L any] func(leaf *L, localOffset int64) (deletedSuffix *L)

// DeleteToCallback marks everything strictly before localOffset (within
// leaf) as deleted, mutates leaf in place to keep only the alive suffix,
// and returns the deleted prefix as a new leaf, or nil if localOffset was
// at the leaf's left boundary.
type DeleteToCallback[L any] func(leaf *L, localOffset int64) (deletedPrefix *L)

// DeleteWhole marks an entire leaf as deleted in place (no split).
type DeleteWhole[L any] func(leaf *L)

// DeleteRange deletes the half-open metric range [start, end) from the
// tree. If both endpoints land in the same leaf, fRange is called once. If
// they land on different leaves, the tree descends to the deepest common
// ancestor, recurses leftward into the start child via fFrom and rightward
// into the end child via fTo, and marks every child strictly between them
// as wholly deleted via deleteWhole. The interior subtrees are left
// structurally in place, but every leaf in them is visited and tombstoned
// (see deleteEntireSubtree), so the cost grows with the amount of content
// the range spans rather than being O(log n).
//
// It panics if the range is out of bounds or inverted, which indicates a
// programmer error rather than a recoverable condition.
func (t *Tree[L, S]) DeleteRange(m Metric[S], start, end int64, fRange DeleteRangeCallback[L], fFrom DeleteFromCallback[L], fTo DeleteToCallback[L], deleteWhole DeleteWhole[L]) {
	total := m.Measure(t.root.summary)
	if start < 0 || end < start || end > total {
		panic("gtree: delete range out of bounds")
	}
	if start == end {
		return
	}

	if t.root.isLeaf() {
		deletedMiddle, tail := fRange(t.root.leaf, start, end)
		t.root.summary = (*t.root.leaf).Summarize()

		var extra []*Node[L, S]
		if deletedMiddle != nil {
			extra = append(extra, newLeafNode[L, S](deletedMiddle))
		}
		if tail != nil {
			extra = append(extra, newLeafNode[L, S](tail))
		}
		if len(extra) > 0 {
			children := append([]*Node[L, S]{t.root}, extra...)
			t.root = newInternalNode[L, S](children)
		}
		return
	}

	if extra := t.deleteIn(t.root, m, start, end, fRange, fFrom, fTo, deleteWhole); extra != nil {
		t.root = newInternalNode[L, S]([]*Node[L, S]{t.root, extra})
	}
}

// deleteIn finds, at this level, whether the whole range is contained in a
// single child (and recurses into it, Case A) or spans two or more
// children (Case B, handled by deleteSpanning). It returns the extra
// sibling node produced if n overflows, or nil.
func (t *Tree[L, S]) deleteIn(n *Node[L, S], m Metric[S], start, end int64, fRange DeleteRangeCallback[L], fFrom DeleteFromCallback[L], fTo DeleteToCallback[L], deleteWhole DeleteWhole[L]) *Node[L, S] {
	var offset int64
	for idx, child := range n.children {
		childMeasure := m.Measure(child.summary)
		offset += childMeasure

		if offset < start {
			continue
		}

		childStart := offset - childMeasure

		if offset >= end {
			localStart := start - childStart
			localEnd := end - childStart

			var extra *Node[L, S]
			if child.isLeaf() {
				deletedMiddle, tail := fRange(child.leaf, localStart, localEnd)
				child.summary = (*child.leaf).Summarize()

				var toInsert []*Node[L, S]
				if deletedMiddle != nil {
					toInsert = append(toInsert, newLeafNode[L, S](deletedMiddle))
				}
				if tail != nil {
					toInsert = append(toInsert, newLeafNode[L, S](tail))
				}
				extra = t.spliceChildren(n, idx+1, toInsert)
			} else {
				childExtra := t.deleteIn(child, m, localStart, localEnd, fRange, fFrom, fTo, deleteWhole)
				if childExtra != nil {
					extra = t.spliceChildren(n, idx+1, []*Node[L, S]{childExtra})
				}
			}

			n.resummarize()
			return extra
		}

		return t.deleteSpanning(n, m, start, end, idx, childStart, fFrom, fTo, deleteWhole)
	}

	panic("gtree: delete range beyond tree length")
}

// deleteSpanning handles Case B: start and end fall in different children
// of n. It recurses leftward into the start child, rightward into the end
// child, and marks everything strictly between them as wholly deleted.
func (t *Tree[L, S]) deleteSpanning(n *Node[L, S], m Metric[S], start, end int64, startIdx int, startChildOffset int64, fFrom DeleteFromCallback[L], fTo DeleteToCallback[L], deleteWhole DeleteWhole[L]) *Node[L, S] {
	// Measure the start child before deleteFromSubtreeAt shrinks it, so offset
	// stays in the same pre-deletion coordinates as end.
	var offset int64 = startChildOffset + m.Measure(n.children[startIdx].summary)
	startExtra := t.deleteFromSubtreeAt(n.children[startIdx], m, start-startChildOffset, fFrom, deleteWhole)

	endIdx := -1
	var endExtra *Node[L, S]
	for idx := startIdx + 1; idx < len(n.children); idx++ {
		child := n.children[idx]
		childMeasure := m.Measure(child.summary)
		offset += childMeasure

		if offset >= end {
			endIdx = idx
			endExtra = t.deleteUpToSubtreeAt(child, m, end-(offset-childMeasure), fTo, deleteWhole)
			break
		}
		deleteEntireSubtree[L, S](child, deleteWhole)
	}
	if endIdx < 0 {
		panic("gtree: delete range beyond tree length")
	}

	n.resummarize()

	var startNode, endNode *Node[L, S]
	if startExtra != nil {
		startNode = startExtra
	}
	if endExtra != nil {
		endNode = endExtra
	}
	extra := t.insertTwo(n, startIdx+1, startNode, endIdx+1, endNode)
	n.resummarize()
	return extra
}

// deleteFromSubtreeAt marks everything at and after localOffset, within
// the subtree rooted at n, as deleted, recursing into n's children as
// needed. It returns the extra sibling node to be inserted immediately
// after n in n's parent, or nil.
func (t *Tree[L, S]) deleteFromSubtreeAt(n *Node[L, S], m Metric[S], localOffset int64, fFrom DeleteFromCallback[L], deleteWhole DeleteWhole[L]) *Node[L, S] {
	if n.isLeaf() {
		deletedSuffix := fFrom(n.leaf, localOffset)
		n.summary = (*n.leaf).Summarize()
		if deletedSuffix == nil {
			return nil
		}
		return newLeafNode[L, S](deletedSuffix)
	}

	var offset int64
	startIdx := -1
	var startExtra *Node[L, S]
	for idx, child := range n.children {
		childMeasure := m.Measure(child.summary)
		if offset+childMeasure >= localOffset {
			startIdx = idx
			if child.isLeaf() {
				deletedSuffix := fFrom(child.leaf, localOffset-offset)
				child.summary = (*child.leaf).Summarize()
				if deletedSuffix != nil {
					startExtra = newLeafNode[L, S](deletedSuffix)
				}
			} else {
				startExtra = t.deleteFromSubtreeAt(child, m, localOffset-offset, fFrom, deleteWhole)
			}
			break
		}
		offset += childMeasure
	}
	if startIdx < 0 {
		panic("gtree: delete-from offset beyond subtree length")
	}

	for idx := startIdx + 1; idx < len(n.children); idx++ {
		deleteEntireSubtree[L, S](n.children[idx], deleteWhole)
	}
	n.resummarize()

	if startExtra == nil {
		return nil
	}
	return t.spliceChildren(n, startIdx+1, []*Node[L, S]{startExtra})
}

// deleteUpToSubtreeAt marks everything strictly before localOffset, within
// the subtree rooted at n, as deleted, recursing into n's children as
// needed. It returns the extra sibling node to be inserted immediately
// after n in n's parent, or nil.
func (t *Tree[L, S]) deleteUpToSubtreeAt(n *Node[L, S], m Metric[S], localOffset int64, fTo DeleteToCallback[L], deleteWhole DeleteWhole[L]) *Node[L, S] {
	if n.isLeaf() {
		deletedPrefix := fTo(n.leaf, localOffset)
		n.summary = (*n.leaf).Summarize()
		if deletedPrefix == nil {
			return nil
		}
		return newLeafNode[L, S](deletedPrefix)
	}

	var offset int64
	endIdx := -1
	var endExtra *Node[L, S]
	for idx, child := range n.children {
		childMeasure := m.Measure(child.summary)
		if offset+childMeasure >= localOffset {
			endIdx = idx
			if child.isLeaf() {
				deletedPrefix := fTo(child.leaf, localOffset-offset)
				child.summary = (*child.leaf).Summarize()
				if deletedPrefix != nil {
					endExtra = newLeafNode[L, S](deletedPrefix)
				}
			} else {
				endExtra = t.deleteUpToSubtreeAt(child, m, localOffset-offset, fTo, deleteWhole)
			}
			break
		}
		deleteEntireSubtree[L, S](child, deleteWhole)
		offset += childMeasure
	}
	if endIdx < 0 {
		panic("gtree: delete-up-to offset beyond subtree length")
	}
	n.resummarize()

	if endExtra == nil {
		return nil
	}
	return t.spliceChildren(n, endIdx+1, []*Node[L, S]{endExtra})
}
