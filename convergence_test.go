package runtree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// applyInOrder merges a prefix of edits into dst, in whatever order the
// caller lists them; Merge buffers anything whose anchor hasn't arrived yet
// and drains it once it can.
func applyInOrder(t *testing.T, dst *Replica, edits []CrdtEdit, order []int) {
	t.Helper()
	for _, i := range order {
		dst.Merge(edits[i])
	}
}

func TestConvergenceAcrossMergeOrders(t *testing.T) {
	src := New(0)
	e0 := src.Inserted(0, 1) // "a"
	e1 := src.Inserted(1, 1) // "ab"
	e2 := src.Inserted(2, 1) // "abc"
	e3 := src.Deleted(1, 2)  // "ac"
	edits := []CrdtEdit{e0, e1, e2, e3}

	forward := New(0)
	applyInOrder(t, forward, edits, []int{0, 1, 2, 3})

	reverse := New(0)
	applyInOrder(t, reverse, edits, []int{3, 2, 1, 0})

	shuffled := New(0)
	applyInOrder(t, shuffled, edits, []int{2, 0, 3, 1})

	require.Equal(t, src.Len(), forward.Len())
	require.Equal(t, src.Len(), reverse.Len())
	require.Equal(t, src.Len(), shuffled.Len())

	if diff := cmp.Diff(forward.tree.Leaves(), reverse.tree.Leaves()); diff != "" {
		t.Errorf("forward vs reverse merge order diverged (-forward, +reverse):\n%s", diff)
	}
	if diff := cmp.Diff(forward.tree.Leaves(), shuffled.tree.Leaves()); diff != "" {
		t.Errorf("forward vs shuffled merge order diverged (-forward, +shuffled):\n%s", diff)
	}
}

// TestConvergenceOfConcurrentInsertsAtSameAnchor exercises two edits that
// share a single anchor because they were produced concurrently on two
// different replicas, neither having seen the other's edit. Merging them in
// opposite orders on two otherwise-identical sites must still land on the
// same final character sequence: sharing an anchor is exactly the situation
// where a replica has to fall back on (LamportTS, Replica) to break the tie,
// rather than ordering by whichever edit merge happened to see first.
func TestConvergenceOfConcurrentInsertsAtSameAnchor(t *testing.T) {
	base := New(0)
	base.Inserted(0, 1) // shared starting point: "a"

	a := base.Clone()
	b := base.Clone()
	editA := a.Inserted(1, 1) // a's own new char, anchored right after "a"
	editB := b.Inserted(1, 1) // b's own new char, anchored at the very same spot

	require.Equal(t, editA.Anchor, editB.Anchor, "both edits must share an anchor for this test to be meaningful")

	siteX := base.Clone()
	_, ok := siteX.Merge(editA)
	require.True(t, ok)
	_, ok = siteX.Merge(editB)
	require.True(t, ok)

	siteY := base.Clone()
	_, ok = siteY.Merge(editB)
	require.True(t, ok)
	_, ok = siteY.Merge(editA)
	require.True(t, ok)

	require.Equal(t, int64(3), siteX.Len())
	require.Equal(t, siteX.Len(), siteY.Len())
	if diff := cmp.Diff(siteX.tree.Leaves(), siteY.tree.Leaves()); diff != "" {
		t.Errorf("merging concurrent same-anchor inserts in different orders diverged (-X, +Y):\n%s", diff)
	}
}

func TestConvergenceWithPendingDrain(t *testing.T) {
	src := New(0)
	e0 := src.Inserted(0, 1)
	e1 := src.Inserted(1, 1)
	e2 := src.Inserted(2, 1)

	dst := New(0)
	// Deliver out of dependency order: e2 depends on e1's anchor, e1 on
	// e0's. Both should buffer until their anchor arrives, then drain.
	_, ok := dst.Merge(e2)
	require.False(t, ok)
	_, ok = dst.Merge(e1)
	require.False(t, ok)
	_, ok = dst.Merge(e0)
	require.True(t, ok)

	require.Equal(t, int64(3), dst.Len())
}
