package runtree

// EditKind distinguishes the two shapes a CrdtEdit can take.
type EditKind int

const (
	// EditInsertion names characters a replica produced.
	EditInsertion EditKind = iota
	// EditDeletion names characters a replica tombstoned.
	EditDeletion
)

// RunSpan names a contiguous sub-range of characters a single replica
// produced: the characters Replica's Start, Start+1, ..., End-1.
type RunSpan struct {
	Replica    ReplicaID
	Start, End CharacterTimestamp
}

// CrdtEdit is the unit of exchange between replicas: a self-contained
// description of an insertion or deletion, expressed entirely in anchors
// and character timestamps so it can be replayed on any replica regardless
// of how its own tree happens to be laid out.
//
// CrdtEdit carries no text: this index tracks which characters exist and
// where, not what they are. A transport layer pairs a CrdtEdit with the
// actual bytes out of band.
type CrdtEdit struct {
	Kind EditKind

	// Insertion fields, set when Kind == EditInsertion.
	Replica   ReplicaID
	LamportTS LamportClock
	Start     CharacterTimestamp
	End       CharacterTimestamp
	Anchor    Anchor

	// Deletion fields, set when Kind == EditDeletion. A single Deleted call
	// can tombstone characters spanning several runs (even several
	// replicas', if the deleted range straddles a weave boundary), so the
	// deletion carries one span per originating run.
	Deleted []RunSpan
}

// Len returns the number of characters an insertion edit describes.
func (e CrdtEdit) Len() int64 {
	return int64(e.End - e.Start)
}

// TextEdit is the result of applying a CrdtEdit to a Replica, expressed in
// that replica's own visible-offset coordinates, for a caller that keeps
// the actual text in a separate buffer (e.g. a rope or []rune) to apply the
// same edit to.
type TextEdit struct {
	Kind EditKind

	// Offset and Len describe an insertion: Len characters were inserted
	// at visible offset Offset. Unset for deletions.
	Offset int64
	Len    int64

	// Ranges describes a deletion as a sequence of visible ranges, each
	// delimited by offset and length, to be applied in order: each range's
	// Offset is measured after every earlier range in the slice has already
	// been removed. A deletion can produce more than one range if the
	// tombstoned characters, though
	// contiguous in the sender's original edit, landed on non-adjacent runs
	// in this replica's tree.
	Ranges []TextRange
}

// TextRange is a single contiguous visible span, used by TextEdit.Ranges.
type TextRange struct {
	Offset, Len int64
}
