package runtree

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ReplicaID identifies a replica uniquely across the whole system. The zero
// value is reserved: it never names a real replica, and is used as the
// anchor of the very first character a document is created with, which by
// definition wasn't inserted after anything.
type ReplicaID [16]byte

// NewReplicaID generates a fresh, random replica identifier.
func NewReplicaID() ReplicaID {
	return ReplicaID(uuid.New())
}

// IsOrigin reports whether id is the reserved zero value.
func (id ReplicaID) IsOrigin() bool {
	return id == ReplicaID{}
}

// String renders the replica ID as a hex string, for logs and debug dumps.
func (id ReplicaID) String() string {
	return hex.EncodeToString(id[:])
}

// CharacterTimestamp numbers the characters a single replica has ever
// produced, in the order it produced them. It's local to a replica: the
// same value means different characters on different replicas, which is
// why an Anchor always pairs it with a ReplicaID.
type CharacterTimestamp uint64

// Anchor names a specific character: the one a given replica produced with
// a given character timestamp. It's the coordinate every insertion is
// expressed relative to, so that "insert after this character" survives
// concurrent edits that shift positional offsets out from under it.
type Anchor struct {
	Replica ReplicaID
	CharTS  CharacterTimestamp
}

// Origin is the anchor of the document's start: no real character, never
// produced by any replica, always resolvable to "the beginning".
var Origin = Anchor{Replica: ReplicaID{}, CharTS: 0}

// IsOrigin reports whether a names the start-of-document sentinel.
func (a Anchor) IsOrigin() bool {
	return a == Origin
}
