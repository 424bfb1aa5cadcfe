package runtree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := New(5)
	r.Inserted(5, 3)
	r.Deleted(1, 4)

	data := r.Encode()
	decoded, err := Decode(data)
	require.NoError(t, err)

	assertReplicasEqual(t, r, decoded)
}

func TestEncodeDecodeEmptyReplica(t *testing.T) {
	r := New(0)
	data := r.Encode()
	decoded, err := Decode(data)
	require.NoError(t, err)
	assertReplicasEqual(t, r, decoded)
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	r := New(3)
	data := r.Encode()
	_, err := Decode(data[:len(data)-1])
	require.ErrorIs(t, err, ErrChecksumFailed)
}

func TestDecodeRejectsShortData(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeRejectsWrongProtocolVersion(t *testing.T) {
	r := New(1)
	data := r.Encode()
	data[0] = 0xff // protocolVersion low byte, corrupting the version field
	_, err := Decode(data)
	var protoErr *DifferentProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func assertReplicasEqual(t *testing.T, a, b *Replica) {
	t.Helper()
	require.Equal(t, a.id, b.id)
	require.Equal(t, a.charTS, b.charTS)
	require.Equal(t, a.clock, b.clock)
	if diff := cmp.Diff(a.tree.Leaves(), b.tree.Leaves()); diff != "" {
		t.Errorf("decoded runs differ (-original, +decoded):\n%s", diff)
	}
}
