//go:build debug

package runtree

// debugChecks gates the extra AssertInvariants walk after every mutation.
// Built in with -tags debug; off by default (see replica_release.go) since
// a full tree walk after every keystroke isn't something production
// editing sessions should pay for.
const debugChecks = true
