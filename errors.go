package runtree

import (
	"errors"
	"fmt"
)

// assertf panics with a formatted message if cond is false. It marks a
// programmer error — an out-of-range offset or an inverted range — rather
// than a recoverable condition, matching how this index's reference
// implementation treats contract violations.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// ErrChecksumFailed is returned by Decode when the payload's checksum
// doesn't match the one recorded alongside it, meaning the bytes were
// truncated or corrupted in transit.
var ErrChecksumFailed = errors.New("runtree: checksum failed")

// ErrInvalidData is returned by Decode when the payload is structurally
// malformed (a run count or varint that runs past the end of the buffer).
var ErrInvalidData = errors.New("runtree: invalid encoded data")

// ErrNotImplemented is returned by Replica.Undo, which has no well-defined
// behavior yet: see Undo's doc comment.
var ErrNotImplemented = errors.New("runtree: not implemented")

// DifferentProtocolError is returned by Decode when the data was encoded by
// a different protocol version than this build knows how to read.
type DifferentProtocolError struct {
	EncodedOn  uint32
	DecodingOn uint32
}

func (e *DifferentProtocolError) Error() string {
	return fmt.Sprintf("runtree: data encoded with protocol %d, decoding with %d", e.EncodedOn, e.DecodingOn)
}
