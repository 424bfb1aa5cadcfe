package runtree

// LamportClock is a Lamport logical clock: a counter that only ever
// increases, bumped locally on every event and merged forward, to one past
// the larger of the two values, whenever a remote timestamp arrives.
type LamportClock uint64

// Next advances the clock by one and returns the new value, for use as the
// timestamp of a locally-produced event.
func (c *LamportClock) Next() LamportClock {
	*c++
	return *c
}

// Update merges a remote timestamp into the clock: the clock becomes
// max(clock, remote) + 1, so that any event happens-after every event the
// remote timestamp could have seen.
func (c *LamportClock) Update(remote LamportClock) LamportClock {
	if remote > *c {
		*c = remote
	}
	*c++
	return *c
}
