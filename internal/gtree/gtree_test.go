package gtree_test

import (
	"testing"

	"github.com/brunokim/runtree/internal/gtree"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// chunk is a minimal Leaf fixture for exercising gtree directly, without
// pulling in the insertion-run domain: a run of N units, alive or deleted.
type chunk struct {
	N       int64
	Deleted bool
}

func (c chunk) Summarize() chunkSummary {
	if c.Deleted {
		return chunkSummary{Total: c.N}
	}
	return chunkSummary{Visible: c.N, Total: c.N}
}

func (c *chunk) split(at int64) *chunk {
	right := &chunk{N: c.N - at, Deleted: c.Deleted}
	c.N = at
	return right
}

type chunkSummary struct {
	Visible, Total int64
}

func (s chunkSummary) Add(o chunkSummary) chunkSummary {
	return chunkSummary{s.Visible + o.Visible, s.Total + o.Total}
}

func (s chunkSummary) Sub(o chunkSummary) chunkSummary {
	return chunkSummary{s.Visible - o.Visible, s.Total - o.Total}
}

type visibleLen struct{}

func (visibleLen) Measure(s chunkSummary) int64 { return s.Visible }

func newTestTree(n int64) *gtree.Tree[chunk, chunkSummary] {
	return gtree.New[chunk, chunkSummary](chunk{N: n})
}

func TestInsertAtSplitsLeaf(t *testing.T) {
	tree := newTestTree(10)
	tree.InsertAt(visibleLen{}, 4, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
		tail := leaf.split(localOffset)
		return &chunk{N: 1}, tail
	})

	require.NoError(t, tree.AssertInvariants())
	require.Equal(t, int64(11), tree.Measure(visibleLen{}))

	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	require.Equal(t, int64(4), leaves[0].N)
	require.Equal(t, int64(1), leaves[1].N)
	require.Equal(t, int64(6), leaves[2].N)
}

func TestInsertAtForcesSplitOfOverflowingNode(t *testing.T) {
	tree := gtree.NewWithArity[chunk, chunkSummary](gtree.MinArity, chunk{N: 0})
	for i := 0; i < 50; i++ {
		offset := tree.Measure(visibleLen{})
		tree.InsertAt(visibleLen{}, offset, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
			if leaf.N == 0 && localOffset == 0 {
				*leaf = chunk{N: 1}
				return nil, nil
			}
			return &chunk{N: 1}, nil
		})
	}
	require.NoError(t, tree.AssertInvariants())
	require.Equal(t, int64(50), tree.Measure(visibleLen{}))
	require.Len(t, tree.Leaves(), 50)
}

func TestDeleteRangeWithinSingleLeaf(t *testing.T) {
	tree := newTestTree(10)
	tree.DeleteRange(visibleLen{}, 3, 7,
		func(leaf *chunk, localStart, localEnd int64) (deletedMiddle, tail *chunk) {
			tail = leaf.split(localEnd)
			mid := leaf.split(localStart)
			mid.Deleted = true
			return mid, tail
		},
		func(leaf *chunk, localOffset int64) *chunk { panic("unused in this test") },
		func(leaf *chunk, localOffset int64) *chunk { panic("unused in this test") },
		func(leaf *chunk) { leaf.Deleted = true },
	)

	require.NoError(t, tree.AssertInvariants())
	require.Equal(t, int64(6), tree.Measure(visibleLen{}))
	require.Equal(t, int64(10), tree.Measure(totalLen{}))
}

func TestDeleteRangeSpanningMultipleLeaves(t *testing.T) {
	tree := newTestTree(0)
	// Build four adjacent leaves of length 5 each: [0,5) [5,10) [10,15) [15,20)
	offset := int64(0)
	for i := 0; i < 4; i++ {
		tree.InsertAt(visibleLen{}, offset, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
			if leaf.N == 0 {
				*leaf = chunk{N: 5}
				return nil, nil
			}
			return &chunk{N: 5}, nil
		})
		offset += 5
	}
	require.Equal(t, int64(20), tree.Measure(visibleLen{}))

	splitCallback := func(leaf *chunk, localOffset int64) *chunk {
		if localOffset == 0 || localOffset == leaf.N {
			return nil
		}
		tail := leaf.split(localOffset)
		return tail
	}
	upToCallback := func(leaf *chunk, localOffset int64) *chunk {
		if localOffset == 0 || localOffset == leaf.N {
			return nil
		}
		prefix := &chunk{N: localOffset, Deleted: leaf.Deleted}
		leaf.N -= localOffset
		return prefix
	}

	tree.DeleteRange(visibleLen{}, 7, 17,
		func(leaf *chunk, localStart, localEnd int64) (deletedMiddle, tail *chunk) {
			panic("range fits in one leaf only for small deletes; not expected here")
		},
		func(leaf *chunk, localOffset int64) *chunk {
			suffix := splitCallback(leaf, localOffset)
			if suffix != nil {
				suffix.Deleted = true
			} else if localOffset == 0 {
				leaf.Deleted = true
			}
			return suffix
		},
		func(leaf *chunk, localOffset int64) *chunk {
			prefix := upToCallback(leaf, localOffset)
			if prefix != nil {
				prefix.Deleted = true
			} else if localOffset == leaf.N {
				leaf.Deleted = true
			}
			return prefix
		},
		func(leaf *chunk) { leaf.Deleted = true },
	)

	require.NoError(t, tree.AssertInvariants())
	require.Equal(t, int64(10), tree.Measure(visibleLen{}))
}

func TestDeleteRangeSpanningAnEntireInternalSubtree(t *testing.T) {
	// Build enough single-unit leaves, at MinArity, that the middle of the
	// deleted range covers a whole internal node (several leaves under one
	// parent), not just a single leaf, exercising deleteEntireSubtree's
	// recursive-tombstone path rather than its direct-leaf path.
	tree := gtree.NewWithArity[chunk, chunkSummary](gtree.MinArity, chunk{N: 0})
	for i := 0; i < 40; i++ {
		offset := tree.Measure(visibleLen{})
		tree.InsertAt(visibleLen{}, offset, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
			if leaf.N == 0 && localOffset == 0 {
				*leaf = chunk{N: 1}
				return nil, nil
			}
			return &chunk{N: 1}, nil
		})
	}
	require.Equal(t, int64(40), tree.Measure(visibleLen{}))

	splitCallback := func(leaf *chunk, localOffset int64) *chunk {
		if localOffset == 0 || localOffset == leaf.N {
			return nil
		}
		return leaf.split(localOffset)
	}
	tree.DeleteRange(visibleLen{}, 5, 35,
		func(leaf *chunk, localStart, localEnd int64) (deletedMiddle, tail *chunk) {
			panic("range spans many leaves; not expected here")
		},
		func(leaf *chunk, localOffset int64) *chunk {
			suffix := splitCallback(leaf, localOffset)
			if suffix != nil {
				suffix.Deleted = true
			} else if localOffset == 0 {
				leaf.Deleted = true
			}
			return suffix
		},
		func(leaf *chunk, localOffset int64) *chunk {
			if localOffset == 0 {
				return nil
			}
			if localOffset == leaf.N {
				leaf.Deleted = true
				return nil
			}
			prefix := &chunk{N: localOffset}
			leaf.N -= localOffset
			prefix.Deleted = true
			return prefix
		},
		func(leaf *chunk) { leaf.Deleted = true },
	)

	require.NoError(t, tree.AssertInvariants())
	require.Equal(t, int64(10), tree.Measure(visibleLen{}))
	require.Equal(t, int64(40), tree.Measure(totalLen{}))

	for _, leaf := range tree.Leaves() {
		require.NotZero(t, leaf.N)
	}
}

type totalLen struct{}

func (totalLen) Measure(s chunkSummary) int64 { return s.Total }

func TestOffsetOfFindsLeafByPointer(t *testing.T) {
	tree := newTestTree(0)
	var middle *chunk
	offset := int64(0)
	for i := 0; i < 5; i++ {
		tree.InsertAt(visibleLen{}, offset, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
			if leaf.N == 0 {
				*leaf = chunk{N: 2}
				return nil, nil
			}
			return &chunk{N: 2}, nil
		})
		offset += 2
	}
	tree.VisitLeaves(func(leaf *chunk) {
		if middle == nil {
			middle = leaf
		}
	})

	got, ok := tree.OffsetOf(visibleLen{}, middle)
	require.True(t, ok)
	require.Equal(t, int64(0), got)
}

func TestOffsetOfMissingLeaf(t *testing.T) {
	tree := newTestTree(4)
	other := &chunk{N: 1}
	_, ok := tree.OffsetOf(visibleLen{}, other)
	require.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	tree := newTestTree(5)
	clone := tree.Clone()
	clone.InsertAt(visibleLen{}, 5, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
		return &chunk{N: 1}, nil
	})
	require.Equal(t, int64(5), tree.Measure(visibleLen{}))
	require.Equal(t, int64(6), clone.Measure(visibleLen{}))
}

func TestLeavesOrderIsLeftToRight(t *testing.T) {
	tree := newTestTree(1)
	tree.InsertAt(visibleLen{}, 1, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
		return &chunk{N: 2}, nil
	})
	tree.InsertAt(visibleLen{}, 3, func(localOffset int64, leaf *chunk) (after, extra *chunk) {
		return &chunk{N: 3}, nil
	})

	got := tree.Leaves()
	want := []chunk{{N: 1}, {N: 2}, {N: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Leaves() mismatch (-want, +got):\n%s", diff)
	}
}
