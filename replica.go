package runtree

import (
	"github.com/brunokim/runtree/internal/gtree"
	"github.com/brunokim/runtree/internal/summary"
)

// runTree is the insertion-run index's concrete tree instantiation: a
// gtree.Tree whose leaves are InsertionRuns and whose cached summary is a
// LenSummary, descended by either of summary's two metrics.
type runTree = gtree.Tree[InsertionRun, summary.LenSummary]

func newRunTree(run InsertionRun) *runTree {
	return gtree.New[InsertionRun, summary.LenSummary](run)
}

// Replica is a single site's view of the document: an insertion-run index,
// a Lamport clock, and a queue of remote edits still waiting on an anchor
// this replica hasn't seen yet. A Replica is single-owner: nothing about it
// is safe for concurrent use without an external lock (see cmd/demo for the
// one place this module needs one).
type Replica struct {
	id      ReplicaID
	charTS  CharacterTimestamp
	clock   LamportClock
	tree    *runTree
	anchors *anchorIndex
	pending []CrdtEdit

	// lastRun is the run this replica itself most recently produced or
	// extended, enabling the coalescing fast path in Inserted: typing
	// one character after another at the same point extends a single run
	// instead of allocating a new one-character leaf each keystroke.
	lastRun *InsertionRun
}

// New creates a replica seeded with length characters of content, all
// attributed to a freshly generated replica ID anchored at the document's
// start. Used to bootstrap a document from existing text whose CRDT history
// isn't being tracked (e.g. loading a file for the first time).
func New(length int64) *Replica {
	assertf(length >= 0, "runtree: New length must be non-negative, got %d", length)

	id := NewReplicaID()
	r := &Replica{id: id, anchors: newAnchorIndex()}
	ts := r.clock.Next()
	run := InsertionRun{
		Replica:   id,
		LamportTS: ts,
		Start:     0,
		End:       CharacterTimestamp(length),
		Anchor:    Origin,
	}
	r.charTS = CharacterTimestamp(length)
	r.tree = newRunTree(run)
	r.tree.VisitLeaves(func(run *InsertionRun) { r.anchors.Add(run) })
	return r
}

// ID returns the replica's own identifier.
func (r *Replica) ID() ReplicaID { return r.id }

// Len returns the document's current visible length.
func (r *Replica) Len() int64 {
	return r.tree.Measure(summary.VisibleLen{})
}

// Clone forks the replica: the new replica starts with an identical copy of
// the document, a fresh random identity, and its own character-timestamp
// counter reset to zero (since it hasn't produced any characters yet under
// that identity). Its Lamport clock is carried forward and bumped once, so
// anything it produces next happens-after everything the parent has seen.
func (r *Replica) Clone() *Replica {
	clone := &Replica{
		id:      NewReplicaID(),
		tree:    r.tree.Clone(),
		anchors: newAnchorIndex(),
		clock:   r.clock,
	}
	clone.clock.Next()
	clone.tree.VisitLeaves(func(run *InsertionRun) { clone.anchors.Add(run) })
	return clone
}

// AssertInvariants walks the replica's tree and returns the first
// structural invariant violation found, or nil.
func (r *Replica) AssertInvariants() error {
	return r.tree.AssertInvariants()
}

// Inserted records that the replica itself typed length new characters at
// visible offset offset, and returns the CrdtEdit describing it for
// transmission to other replicas. The caller is responsible for applying
// the same insertion to whatever buffer holds the actual text.
func (r *Replica) Inserted(offset, length int64) CrdtEdit {
	assertf(length > 0, "runtree: inserted length must be positive, got %d", length)
	visLen := r.tree.Measure(summary.VisibleLen{})
	assertf(offset >= 0 && offset <= visLen, "runtree: insert offset %d out of range [0,%d]", offset, visLen)

	start := r.charTS
	end := start + CharacterTimestamp(length)

	if ts, ok := r.tryCoalesce(offset, length); ok {
		r.charTS = end
		return CrdtEdit{
			Kind:      EditInsertion,
			Replica:   r.id,
			LamportTS: ts,
			Start:     start,
			End:       end,
			Anchor:    Anchor{Replica: r.id, CharTS: start - 1},
		}
	}

	ts := r.clock.Next()
	newRun := &InsertionRun{Replica: r.id, LamportTS: ts, Start: start, End: end}
	var treeLeaf, displaced *InsertionRun
	r.tree.InsertAt(summary.VisibleLen{}, offset, func(localOffset int64, leaf *InsertionRun) (after, extra *InsertionRun) {
		switch {
		case localOffset == 0:
			// gtree's InsertCallback can only splice new leaves in after the
			// one it lands on, so inserting at the very front of the document
			// means swapping leaf's content for newRun's and carrying the
			// displaced content along as the leaf that now follows it.
			newRun.Anchor = Origin
			r.anchors.Remove(leaf)
			if leaf.Len() == 0 {
				// The empty seed run of New(0) holds no characters to
				// displace, so newRun simply takes its place.
				*leaf = *newRun
				treeLeaf = leaf
				return nil, nil
			}
			old := *leaf
			displaced = &old
			*leaf = *newRun
			treeLeaf = leaf
			return displaced, nil
		case localOffset == leaf.Len():
			newRun.Anchor = leaf.LastAnchor()
			treeLeaf = newRun
			return newRun, nil
		default:
			tail := leaf.Split(localOffset)
			newRun.Anchor = leaf.LastAnchor()
			r.anchors.Add(tail)
			treeLeaf = newRun
			return newRun, tail
		}
	})
	if displaced != nil {
		r.anchors.Add(displaced)
	}
	r.anchors.Add(treeLeaf)
	r.lastRun = treeLeaf
	r.charTS = end
	r.checkInvariants()

	return CrdtEdit{
		Kind:      EditInsertion,
		Replica:   r.id,
		LamportTS: ts,
		Start:     start,
		End:       end,
		Anchor:    newRun.Anchor,
	}
}

// checkInvariants walks the replica's tree when built with -tags debug,
// panicking at the first structural inconsistency instead of letting it
// surface later as a garbled document. A no-op in normal builds.
func (r *Replica) checkInvariants() {
	if !debugChecks {
		return
	}
	if err := r.tree.AssertInvariants(); err != nil {
		panic(err)
	}
}

// tryCoalesce extends r.lastRun in place instead of inserting a new leaf,
// when offset lands exactly where r.lastRun's own content ends and
// r.lastRun is still the run this replica itself most recently grew. It
// reports whether it did so, and if it did, the run's Lamport timestamp
// from before the extension: coalescing never ticks the clock or creates a
// new leaf, so the emitted edit must advertise the same timestamp the run
// already carries, not a freshly minted one.
func (r *Replica) tryCoalesce(offset, length int64) (LamportClock, bool) {
	if r.lastRun == nil || r.lastRun.IsDeleted || r.lastRun.Replica != r.id || r.lastRun.End != r.charTS {
		return 0, false
	}
	runOffset, ok := r.tree.OffsetOf(summary.VisibleLen{}, r.lastRun)
	if !ok || runOffset+r.lastRun.Len() != offset {
		return 0, false
	}
	ts := r.lastRun.LamportTS
	// Extend through InsertAt so every ancestor's cached summary grows with
	// the run; offset is the run's own end, so the descent lands on it.
	r.tree.InsertAt(summary.VisibleLen{}, offset, func(_ int64, leaf *InsertionRun) (after, extra *InsertionRun) {
		assertf(leaf == r.lastRun, "runtree: coalescing descent landed on another run")
		leaf.Extend(length)
		return nil, nil
	})
	return ts, true
}

// Deleted records that the replica itself tombstoned the visible range
// [start, end), and returns the CrdtEdit describing it. The deletion may
// span several runs (even several replicas' runs, if the range straddles a
// weave boundary), so the edit carries one span per originating run.
func (r *Replica) Deleted(start, end int64) CrdtEdit {
	visLen := r.tree.Measure(summary.VisibleLen{})
	assertf(start >= 0 && end >= start && end <= visLen, "runtree: delete range [%d,%d) out of bounds for length %d", start, end, visLen)
	if start == end {
		return CrdtEdit{Kind: EditDeletion}
	}

	var spans []RunSpan
	addSpan := func(run *InsertionRun) {
		if run.Len() > 0 {
			spans = append(spans, RunSpan{Replica: run.Replica, Start: run.Start, End: run.End})
		}
	}

	r.tree.DeleteRange(summary.VisibleLen{}, start, end,
		func(leaf *InsertionRun, localStart, localEnd int64) (deletedMiddle, tail *InsertionRun) {
			deletedMiddle, tail = leaf.DeleteRange(localStart, localEnd)
			switch {
			case deletedMiddle != nil:
				r.anchors.Add(deletedMiddle)
				addSpan(deletedMiddle)
			case leaf.IsDeleted:
				addSpan(leaf)
			}
			if tail != nil {
				r.anchors.Add(tail)
			}
			return deletedMiddle, tail
		},
		func(leaf *InsertionRun, localOffset int64) (deletedSuffix *InsertionRun) {
			deletedSuffix = leaf.DeleteFrom(localOffset)
			switch {
			case deletedSuffix != nil:
				r.anchors.Add(deletedSuffix)
				addSpan(deletedSuffix)
			case leaf.IsDeleted:
				addSpan(leaf)
			}
			return deletedSuffix
		},
		func(leaf *InsertionRun, localOffset int64) (deletedPrefix *InsertionRun) {
			deletedPrefix = leaf.DeleteUpTo(localOffset)
			switch {
			case deletedPrefix != nil:
				r.anchors.Add(deletedPrefix)
				addSpan(deletedPrefix)
			case leaf.IsDeleted:
				addSpan(leaf)
			}
			return deletedPrefix
		},
		func(leaf *InsertionRun) {
			if !leaf.IsDeleted {
				leaf.Delete()
				addSpan(leaf)
			}
		},
	)

	r.checkInvariants()
	return CrdtEdit{Kind: EditDeletion, Deleted: spans}
}

// Undo is not implemented: inverting a deletion-of-an-insertion requires
// replaying the original run's text, which this replica never stored, so
// there's no well-defined descriptor to build from Deleted's output alone.
func (r *Replica) Undo(edit CrdtEdit) error {
	return ErrNotImplemented
}

// Merge applies a remote CrdtEdit to this replica. If the edit's anchor (or,
// for a deletion, any of its spans) isn't resolvable yet — the insertion it
// depends on hasn't arrived — the unresolved part is buffered on pending; it
// will be retried automatically the next time any edit is successfully
// merged. Merge reports ok == false only when nothing of the edit could be
// applied: a deletion whose spans resolve in part is applied for those spans
// and reports ok == true. The returned TextEdit, when ok, is
// expressed in this replica's own visible-offset coordinates, for a caller
// to apply the same change to its text buffer.
func (r *Replica) Merge(edit CrdtEdit) (*TextEdit, bool) {
	switch edit.Kind {
	case EditInsertion:
		target, ok := r.resolveInsertTarget(edit.Anchor)
		if !ok {
			r.pending = append(r.pending, edit)
			return nil, false
		}
		offset := r.applyInsertion(edit, target)
		r.drainPending()
		r.checkInvariants()
		return &TextEdit{Kind: EditInsertion, Offset: offset, Len: edit.Len()}, true

	case EditDeletion:
		var ranges []TextRange
		var unresolved []RunSpan
		for _, span := range edit.Deleted {
			covered, ok := r.applyDeletionSpan(span)
			ranges = append(ranges, covered...)
			if !ok {
				unresolved = append(unresolved, span)
			}
		}
		if len(unresolved) > 0 {
			r.pending = append(r.pending, CrdtEdit{Kind: EditDeletion, Deleted: unresolved})
		}
		r.drainPending()
		if len(ranges) == 0 && len(unresolved) == len(edit.Deleted) && len(edit.Deleted) > 0 {
			return nil, false
		}
		r.checkInvariants()
		return &TextEdit{Kind: EditDeletion, Ranges: ranges}, true

	default:
		panic("runtree: invalid edit kind")
	}
}

// resolveInsertTarget turns an anchor into the visible offset a new run
// anchored there should be inserted at. It returns ok == false if the
// anchor doesn't (yet) resolve to any run this replica knows about.
func (r *Replica) resolveInsertTarget(a Anchor) (int64, bool) {
	if a.IsOrigin() {
		return 0, true
	}
	run, localOffset, found := r.anchors.Resolve(a)
	if !found {
		return 0, false
	}
	base, found := r.tree.OffsetOf(summary.VisibleLen{}, run)
	if !found {
		return 0, false
	}
	if run.IsDeleted {
		return base, true
	}
	return base + localOffset + 1, true
}

// applyInsertion inserts edit's run at the given visible target offset,
// splitting whatever leaf currently occupies that position if needed.
// target names where edit's anchor alone resolves to; if other runs
// already sit at that same anchor (concurrent inserts this replica
// learned about first), the run is shifted past whichever of them
// outrank it, so every replica lands the same set of same-anchor runs in
// the same order regardless of merge arrival order. It returns the visible
// offset the run was actually inserted at.
func (r *Replica) applyInsertion(edit CrdtEdit, target int64) int64 {
	r.clock.Update(edit.LamportTS)
	newRun := &InsertionRun{
		Replica:   edit.Replica,
		LamportTS: edit.LamportTS,
		Start:     edit.Start,
		End:       edit.End,
		Anchor:    edit.Anchor,
	}
	target += r.anchors.SiblingShift(edit.Anchor, newRun)

	var treeLeaf, displaced *InsertionRun
	r.tree.InsertAt(summary.VisibleLen{}, target, func(localOffset int64, leaf *InsertionRun) (after, extra *InsertionRun) {
		switch {
		case localOffset == 0:
			// As in Inserted: landing at the very front of the document
			// means swapping content into leaf's slot rather than splicing
			// after it, so the new run actually ends up first.
			r.anchors.Remove(leaf)
			if leaf.Len() == 0 {
				// The empty seed run of New(0) holds no characters to
				// displace, so newRun simply takes its place.
				*leaf = *newRun
				treeLeaf = leaf
				return nil, nil
			}
			old := *leaf
			displaced = &old
			*leaf = *newRun
			treeLeaf = leaf
			return displaced, nil
		case localOffset == leaf.Len():
			treeLeaf = newRun
			return newRun, nil
		default:
			tail := leaf.Split(localOffset)
			r.anchors.Add(tail)
			treeLeaf = newRun
			return newRun, tail
		}
	})
	if displaced != nil {
		r.anchors.Add(displaced)
	}
	r.anchors.Add(treeLeaf)
	return target
}

// applyDeletionSpan tombstones as much of span as currently resolves to
// runs in the tree, walking forward through whatever pieces the original
// run has since been split into. It returns the visible ranges it
// tombstoned, and whether the whole span was covered.
func (r *Replica) applyDeletionSpan(span RunSpan) (covered []TextRange, ok bool) {
	cursor := span.Start
	for cursor < span.End {
		run, localOffset, found := r.anchors.Resolve(Anchor{Replica: span.Replica, CharTS: cursor})
		if !found {
			return covered, false
		}

		chunkLen := int64(span.End - cursor)
		if remaining := run.Len() - localOffset; chunkLen > remaining {
			chunkLen = remaining
		}

		if !run.IsDeleted {
			base, _ := r.tree.OffsetOf(summary.VisibleLen{}, run)
			visStart := base + localOffset
			r.tree.DeleteRange(summary.VisibleLen{}, visStart, visStart+chunkLen,
				func(leaf *InsertionRun, localStart, localEnd int64) (deletedMiddle, tail *InsertionRun) {
					deletedMiddle, tail = leaf.DeleteRange(localStart, localEnd)
					if deletedMiddle != nil {
						r.anchors.Add(deletedMiddle)
					}
					if tail != nil {
						r.anchors.Add(tail)
					}
					return deletedMiddle, tail
				},
				func(leaf *InsertionRun, localOffset int64) (deletedSuffix *InsertionRun) {
					deletedSuffix = leaf.DeleteFrom(localOffset)
					if deletedSuffix != nil {
						r.anchors.Add(deletedSuffix)
					}
					return deletedSuffix
				},
				func(leaf *InsertionRun, localOffset int64) (deletedPrefix *InsertionRun) {
					deletedPrefix = leaf.DeleteUpTo(localOffset)
					if deletedPrefix != nil {
						r.anchors.Add(deletedPrefix)
					}
					return deletedPrefix
				},
				func(leaf *InsertionRun) { leaf.Delete() },
			)
			covered = append(covered, TextRange{Offset: visStart, Len: chunkLen})
		}

		cursor += CharacterTimestamp(chunkLen)
	}
	return covered, true
}

// drainPending retries every buffered edit, repeatedly, until a full pass
// makes no further progress. An edit (or, for a deletion, the still-unmet
// remainder of one) that still doesn't resolve is kept buffered for the
// next call.
func (r *Replica) drainPending() {
	for {
		progressed := false
		pending := r.pending
		r.pending = nil
		var remaining []CrdtEdit

		for _, edit := range pending {
			switch edit.Kind {
			case EditInsertion:
				if target, ok := r.resolveInsertTarget(edit.Anchor); ok {
					r.applyInsertion(edit, target)
					progressed = true
					continue
				}
				remaining = append(remaining, edit)

			case EditDeletion:
				var unresolved []RunSpan
				for _, span := range edit.Deleted {
					if _, ok := r.applyDeletionSpan(span); !ok {
						unresolved = append(unresolved, span)
					}
				}
				if len(unresolved) < len(edit.Deleted) {
					progressed = true
				}
				if len(unresolved) > 0 {
					remaining = append(remaining, CrdtEdit{Kind: EditDeletion, Deleted: unresolved})
				}
			}
		}

		r.pending = remaining
		if !progressed {
			return
		}
	}
}

// appendRun places run as the very last leaf in structural order,
// regardless of whether it's alive or tombstoned. Used only to reconstruct
// a replica's tree from its encoded form, where runs arrive already in
// left-to-right order.
func (r *Replica) appendRun(run *InsertionRun) {
	total := r.tree.Measure(summary.TotalLen{})
	r.tree.InsertAt(summary.TotalLen{}, total, func(int64, *InsertionRun) (after, extra *InsertionRun) {
		return run, nil
	})
	r.anchors.Add(run)
}
