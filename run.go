package runtree

import "github.com/brunokim/runtree/internal/summary"

// InsertionRun is a leaf of the insertion-run index: a maximal contiguous
// span of characters produced by a single replica, in a single burst of
// typing, at a single Lamport timestamp. A run never reorders or merges
// characters from different replicas or different bursts — the tree splits
// and grows runs instead, so that every character keeps a stable anchor for
// the rest of the document's life.
type InsertionRun struct {
	// Replica is the replica that produced this run's characters.
	Replica ReplicaID
	// LamportTS is the Lamport timestamp the run was produced at.
	LamportTS LamportClock
	// Start and End name the half-open range of the producing replica's own
	// character timestamps this run covers: the characters are
	// Replica's Start, Start+1, ..., End-1.
	Start, End CharacterTimestamp
	// Anchor names the character this run was inserted immediately after.
	Anchor Anchor
	// IsDeleted marks every character in the run as tombstoned. A run is
	// deleted as a whole; partially deleting it splits off the deleted
	// portion into its own run first.
	IsDeleted bool
}

// Len returns the number of characters the run covers, alive or not.
func (r *InsertionRun) Len() int64 {
	return int64(r.End - r.Start)
}

// LastAnchor returns the anchor of the run's own last character, which is
// where a contiguous extension of this run (or a run split off its end)
// anchors itself.
func (r *InsertionRun) LastAnchor() Anchor {
	return Anchor{Replica: r.Replica, CharTS: r.End - 1}
}

// Summarize implements gtree.Leaf[summary.LenSummary].
func (r InsertionRun) Summarize() summary.LenSummary {
	n := int64(r.End - r.Start)
	if r.IsDeleted {
		return summary.LenSummary{Visible: 0, Total: n}
	}
	return summary.LenSummary{Visible: n, Total: n}
}

// Extend grows the run by n characters at its end, keeping it a single run.
// Used when a replica types immediately after the last character it itself
// produced: rather than creating a new one-character run, the existing run
// simply grows.
func (r *InsertionRun) Extend(n int64) {
	r.End += CharacterTimestamp(n)
}

// Split divides the run at local offset at (0 < at < r.Len()): r keeps the
// prefix [0, at) and the returned run takes the suffix [at, r.Len()). The
// suffix's anchor points at the prefix's new last character, so that a
// later insertion anchored to the original run's tail still resolves to the
// right place regardless of which side of the split it names.
func (r *InsertionRun) Split(at int64) *InsertionRun {
	length := r.Len()
	if at <= 0 || at >= length {
		panic("runtree: split offset out of range")
	}
	mid := r.Start + CharacterTimestamp(at)
	right := &InsertionRun{
		Replica:   r.Replica,
		LamportTS: r.LamportTS,
		Start:     mid,
		End:       r.End,
		Anchor:    Anchor{Replica: r.Replica, CharTS: mid - 1},
		IsDeleted: r.IsDeleted,
	}
	r.End = mid
	return right
}

// splitKeepingSuffix is Split's mirror image: r keeps the suffix [at,
// r.Len()) and the returned run takes the prefix [0, at), which keeps r's
// original anchor. r's own anchor is updated to point at the new prefix's
// last character.
func (r *InsertionRun) splitKeepingSuffix(at int64) *InsertionRun {
	length := r.Len()
	if at <= 0 || at >= length {
		panic("runtree: split offset out of range")
	}
	mid := r.Start + CharacterTimestamp(at)
	left := &InsertionRun{
		Replica:   r.Replica,
		LamportTS: r.LamportTS,
		Start:     r.Start,
		End:       mid,
		Anchor:    r.Anchor,
		IsDeleted: r.IsDeleted,
	}
	r.Anchor = Anchor{Replica: r.Replica, CharTS: mid - 1}
	r.Start = mid
	return left
}

// Delete tombstones the run as a whole. Matches gtree.DeleteWhole.
func (r *InsertionRun) Delete() {
	r.IsDeleted = true
}

// DeleteRange tombstones the half-open local range [localStart, localEnd)
// within the run. r is mutated in place to become whichever piece a
// zero-allocation in-place update can cover (the alive prefix if one
// exists, or the deleted middle itself if the range starts at 0); the
// other pieces are returned as new runs, in left-to-right order. Matches
// gtree.DeleteRangeCallback.
func (r *InsertionRun) DeleteRange(localStart, localEnd int64) (deletedMiddle, tail *InsertionRun) {
	length := r.Len()
	if localStart < 0 || localEnd > length || localStart > localEnd {
		panic("runtree: delete range out of bounds")
	}
	if localStart == localEnd {
		return nil, nil
	}
	if localStart == 0 && localEnd == length {
		r.IsDeleted = true
		return nil, nil
	}
	if localStart == 0 {
		tail = r.Split(localEnd)
		r.IsDeleted = true
		return nil, tail
	}
	if localEnd == length {
		deletedMiddle = r.Split(localStart)
		deletedMiddle.IsDeleted = true
		return deletedMiddle, nil
	}
	rest := r.Split(localStart)
	tail = rest.Split(localEnd - localStart)
	rest.IsDeleted = true
	return rest, tail
}

// DeleteFrom tombstones everything at and after local offset localOffset,
// leaving the alive prefix in r and returning the tombstoned suffix as a
// new run, or nil if localOffset is already at the run's end. Matches
// gtree.DeleteFromCallback.
func (r *InsertionRun) DeleteFrom(localOffset int64) *InsertionRun {
	length := r.Len()
	if localOffset < 0 || localOffset > length {
		panic("runtree: delete-from offset out of range")
	}
	if localOffset == length {
		return nil
	}
	if localOffset == 0 {
		r.IsDeleted = true
		return nil
	}
	suffix := r.Split(localOffset)
	suffix.IsDeleted = true
	return suffix
}

// DeleteUpTo tombstones everything strictly before local offset
// localOffset, leaving the alive suffix in r and returning the tombstoned
// prefix as a new run, or nil if localOffset is 0. Matches
// gtree.DeleteToCallback.
func (r *InsertionRun) DeleteUpTo(localOffset int64) *InsertionRun {
	length := r.Len()
	if localOffset < 0 || localOffset > length {
		panic("runtree: delete-up-to offset out of range")
	}
	if localOffset == 0 {
		return nil
	}
	if localOffset == length {
		r.IsDeleted = true
		return nil
	}
	prefix := r.splitKeepingSuffix(localOffset)
	prefix.IsDeleted = true
	return prefix
}
