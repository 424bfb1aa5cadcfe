package runtree

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// protocolVersion identifies the wire layout Encode produces. Decode
// refuses data encoded by a different version rather than guess at
// compatibility.
const protocolVersion uint32 = 1

const checksumSize = sha256.Size

// Encode serializes the replica's full state — its identity, clocks, and
// every run in the tree, alive or tombstoned, in structural order — into a
// self-describing byte slice: a protocol version, a checksum, and the
// payload it covers.
func (r *Replica) Encode() []byte {
	payload := r.encodePayload()

	sum := sha256.Sum256(payload)

	buf := make([]byte, 4+checksumSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], protocolVersion)
	copy(buf[4:4+checksumSize], sum[:])
	copy(buf[4+checksumSize:], payload)
	return buf
}

func (r *Replica) encodePayload() []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf.Write(scratch[:n])
	}
	putReplicaID := func(id ReplicaID) {
		buf.Write(id[:])
	}

	putReplicaID(r.id)
	putUvarint(uint64(r.charTS))
	putUvarint(uint64(r.clock))

	runs := r.tree.Leaves()
	putUvarint(uint64(len(runs)))
	for _, run := range runs {
		putReplicaID(run.Replica)
		putUvarint(uint64(run.LamportTS))
		putUvarint(uint64(run.Start))
		putUvarint(uint64(run.End))
		putReplicaID(run.Anchor.Replica)
		putUvarint(uint64(run.Anchor.CharTS))
		if run.IsDeleted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// Decode reverses Encode. It returns ErrInvalidData if data is too short or
// structurally malformed, a *DifferentProtocolError if data was encoded by
// another protocol version, and ErrChecksumFailed if the payload doesn't
// match its recorded checksum.
func Decode(data []byte) (*Replica, error) {
	if len(data) < 4+checksumSize {
		return nil, ErrInvalidData
	}
	version := binary.LittleEndian.Uint32(data[0:4])
	if version != protocolVersion {
		return nil, &DifferentProtocolError{EncodedOn: version, DecodingOn: protocolVersion}
	}
	wantSum := data[4 : 4+checksumSize]
	payload := data[4+checksumSize:]

	gotSum := sha256.Sum256(payload)
	if !bytes.Equal(wantSum, gotSum[:]) {
		return nil, ErrChecksumFailed
	}

	dec := &decoder{buf: payload}
	id, ok := dec.replicaID()
	if !ok {
		return nil, ErrInvalidData
	}
	charTS, ok := dec.uvarint()
	if !ok {
		return nil, ErrInvalidData
	}
	lamport, ok := dec.uvarint()
	if !ok {
		return nil, ErrInvalidData
	}
	runCount, ok := dec.uvarint()
	if !ok {
		return nil, ErrInvalidData
	}

	r := &Replica{
		id:      id,
		charTS:  CharacterTimestamp(charTS),
		clock:   LamportClock(lamport),
		anchors: newAnchorIndex(),
	}

	for i := uint64(0); i < runCount; i++ {
		run, ok := dec.run()
		if !ok {
			return nil, ErrInvalidData
		}
		if r.tree == nil {
			r.tree = newRunTree(*run)
			r.tree.VisitLeaves(func(leaf *InsertionRun) { r.anchors.Add(leaf) })
		} else {
			r.appendRun(run)
		}
	}
	if r.tree == nil {
		// an empty document still needs a tree to descend into.
		r.tree = newRunTree(InsertionRun{Replica: id})
		r.tree.VisitLeaves(func(leaf *InsertionRun) { r.anchors.Add(leaf) })
	}

	if !dec.atEnd() {
		return nil, ErrInvalidData
	}
	return r, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) atEnd() bool { return d.pos >= len(d.buf) }

func (d *decoder) uvarint() (uint64, bool) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *decoder) replicaID() (ReplicaID, bool) {
	var id ReplicaID
	if d.pos+len(id) > len(d.buf) {
		return id, false
	}
	copy(id[:], d.buf[d.pos:d.pos+len(id)])
	d.pos += len(id)
	return id, true
}

func (d *decoder) run() (*InsertionRun, bool) {
	replica, ok := d.replicaID()
	if !ok {
		return nil, false
	}
	lamportTS, ok := d.uvarint()
	if !ok {
		return nil, false
	}
	start, ok := d.uvarint()
	if !ok {
		return nil, false
	}
	end, ok := d.uvarint()
	if !ok {
		return nil, false
	}
	anchorReplica, ok := d.replicaID()
	if !ok {
		return nil, false
	}
	anchorTS, ok := d.uvarint()
	if !ok {
		return nil, false
	}
	if d.pos >= len(d.buf) {
		return nil, false
	}
	isDeleted := d.buf[d.pos] != 0
	d.pos++

	return &InsertionRun{
		Replica:   replica,
		LamportTS: LamportClock(lamportTS),
		Start:     CharacterTimestamp(start),
		End:       CharacterTimestamp(end),
		Anchor:    Anchor{Replica: anchorReplica, CharTS: CharacterTimestamp(anchorTS)},
		IsDeleted: isDeleted,
	}, true
}

