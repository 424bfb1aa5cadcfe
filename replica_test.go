package runtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReplicaLen(t *testing.T) {
	r := New(5)
	assert.Equal(t, int64(5), r.Len())
	require.NoError(t, r.AssertInvariants())
}

func TestReplicaInsertedAppendsAtEnd(t *testing.T) {
	r := New(3)
	edit := r.Inserted(3, 2)
	assert.Equal(t, int64(5), r.Len())
	assert.Equal(t, EditInsertion, edit.Kind)
	assert.Equal(t, int64(2), edit.Len())
	require.NoError(t, r.AssertInvariants())
}

func TestReplicaInsertedCoalesces(t *testing.T) {
	r := New(0)
	r.Inserted(0, 1)
	r.Inserted(1, 1)
	r.Inserted(2, 1)

	leaves := r.tree.Leaves()
	require.Len(t, leaves, 1, "contiguous local inserts should coalesce into a single run")
	assert.Equal(t, int64(3), leaves[0].Len())
}

func TestReplicaInsertedMiddleSplits(t *testing.T) {
	r := New(4)
	r.Inserted(2, 1)
	assert.Equal(t, int64(5), r.Len())

	leaves := r.tree.Leaves()
	require.Len(t, leaves, 3)
	assert.Equal(t, int64(2), leaves[0].Len())
	assert.Equal(t, int64(1), leaves[1].Len())
	assert.Equal(t, int64(2), leaves[2].Len())
	require.NoError(t, r.AssertInvariants())
}

func TestReplicaInsertedOutOfRangePanics(t *testing.T) {
	r := New(2)
	assert.Panics(t, func() { r.Inserted(3, 1) })
	assert.Panics(t, func() { r.Inserted(0, 0) })
}

func TestReplicaDeletedMarksTombstone(t *testing.T) {
	r := New(5)
	edit := r.Deleted(1, 3)
	assert.Equal(t, int64(3), r.Len())
	assert.Equal(t, EditDeletion, edit.Kind)
	require.Len(t, edit.Deleted, 1)
	require.NoError(t, r.AssertInvariants())
}

func TestReplicaDeletedEmptyRangeIsNoop(t *testing.T) {
	r := New(5)
	edit := r.Deleted(2, 2)
	assert.Equal(t, int64(5), r.Len())
	assert.Empty(t, edit.Deleted)
}

func TestReplicaDeletedOutOfRangePanics(t *testing.T) {
	r := New(2)
	assert.Panics(t, func() { r.Deleted(0, 3) })
	assert.Panics(t, func() { r.Deleted(2, 1) })
}

func TestReplicaUndoIsNotImplemented(t *testing.T) {
	r := New(1)
	edit := r.Deleted(0, 1)
	err := r.Undo(edit)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestReplicaCloneIsIndependent(t *testing.T) {
	r := New(3)
	clone := r.Clone()
	assert.NotEqual(t, r.ID(), clone.ID())

	clone.Inserted(0, 1)
	assert.Equal(t, int64(3), r.Len())
	assert.Equal(t, int64(4), clone.Len())
}

func TestReplicaMergeInsertionAtOrigin(t *testing.T) {
	src := New(0)
	edit := src.Inserted(0, 1)

	dst := New(0)
	textEdit, ok := dst.Merge(edit)
	require.True(t, ok)
	require.NotNil(t, textEdit)
	assert.Equal(t, int64(0), textEdit.Offset)
	assert.Equal(t, int64(1), textEdit.Len)
	assert.Equal(t, int64(1), dst.Len())
}

func TestReplicaMergeInsertionAfterAnchor(t *testing.T) {
	src := New(0)
	first := src.Inserted(0, 1)  // "a"
	second := src.Inserted(1, 1) // "ab"

	dst := New(0)
	_, ok := dst.Merge(first)
	require.True(t, ok)
	textEdit, ok := dst.Merge(second)
	require.True(t, ok)
	assert.Equal(t, int64(1), textEdit.Offset)
	assert.Equal(t, int64(2), dst.Len())
}

func TestReplicaMergeInsertionBuffersUntilAnchorArrives(t *testing.T) {
	src := New(0)
	first := src.Inserted(0, 1)
	second := src.Inserted(1, 1)

	dst := New(0)
	_, ok := dst.Merge(second) // arrives before its anchor
	require.False(t, ok)
	assert.Equal(t, int64(0), dst.Len())

	_, ok = dst.Merge(first)
	require.True(t, ok)
	assert.Equal(t, int64(2), dst.Len(), "buffered edit should drain once its anchor resolves")
}

func TestReplicaMergeDeletion(t *testing.T) {
	src := New(0)
	ins := src.Inserted(0, 3)
	del := src.Deleted(1, 2)

	dst := New(0)
	_, ok := dst.Merge(ins)
	require.True(t, ok)

	textEdit, ok := dst.Merge(del)
	require.True(t, ok)
	require.NotNil(t, textEdit)
	assert.Equal(t, EditDeletion, textEdit.Kind)
	assert.Equal(t, int64(2), dst.Len())
}
