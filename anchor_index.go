package runtree

import (
	"bytes"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// anchorCacheSize bounds the front cache's entry count. Sized for a typing
// burst's worth of repeated lookups (a user anchoring every new character
// to the one before it), not for the document's full history.
const anchorCacheSize = 256

// anchorIndex resolves an Anchor (the character a run is anchored after) to
// the InsertionRun that currently holds that character, kept in sync with
// every run creation, split and extension. It's the side map spec section 9
// describes: without it, resolving a remote edit's anchor would require
// scanning the whole tree.
type anchorIndex struct {
	byReplica map[ReplicaID][]*InsertionRun
	cache     *lru.Cache[Anchor, *InsertionRun]

	// siblings groups runs by the anchor they were inserted after, sorted
	// by descending higherPriority order (the run closest to the anchor
	// first). Two runs landing on the same anchor only happens when they
	// were inserted concurrently on different replicas; keeping this list
	// sorted by a total order over (LamportTS, Replica) rather than by
	// arrival order is what lets every replica converge on the same
	// character sequence regardless of which edit it merges first.
	siblings map[Anchor][]*InsertionRun
}

func newAnchorIndex() *anchorIndex {
	cache, err := lru.New[Anchor, *InsertionRun](anchorCacheSize)
	if err != nil {
		panic(err)
	}
	return &anchorIndex{
		byReplica: make(map[ReplicaID][]*InsertionRun),
		cache:     cache,
		siblings:  make(map[Anchor][]*InsertionRun),
	}
}

// higherPriority reports whether a belongs closer to their shared anchor
// than b: higher Lamport timestamp wins, ties (concurrent local clocks
// that happened to match) broken by replica ID so the comparison is a
// total order regardless of which replica evaluates it.
func higherPriority(a, b *InsertionRun) bool {
	if a.LamportTS != b.LamportTS {
		return a.LamportTS > b.LamportTS
	}
	return bytes.Compare(a.Replica[:], b.Replica[:]) > 0
}

// Add registers run's character range under its owning replica, and under
// its anchor's sibling list.
func (idx *anchorIndex) Add(run *InsertionRun) {
	list := idx.byReplica[run.Replica]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start >= run.Start })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = run
	idx.byReplica[run.Replica] = list

	siblings := idx.siblings[run.Anchor]
	j := sort.Search(len(siblings), func(j int) bool { return !higherPriority(siblings[j], run) })
	siblings = append(siblings, nil)
	copy(siblings[j+1:], siblings[j:])
	siblings[j] = run
	idx.siblings[run.Anchor] = siblings
}

// Remove deregisters run. Called whenever a run is split or otherwise
// replaced by new run objects, before Add-ing the replacements.
func (idx *anchorIndex) Remove(run *InsertionRun) {
	list := idx.byReplica[run.Replica]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start >= run.Start })
	if i < len(list) && list[i] == run {
		idx.byReplica[run.Replica] = append(list[:i:i], list[i+1:]...)
	}

	siblings := idx.siblings[run.Anchor]
	for j, s := range siblings {
		if s == run {
			idx.siblings[run.Anchor] = append(siblings[:j:j], siblings[j+1:]...)
			break
		}
	}
}

// SiblingShift returns the combined visible length of every run already
// known to share anchor a that outranks run under higherPriority. Adding
// this to the visible offset an anchor alone resolves to gives the
// position run must be inserted at so that concurrent inserts sharing an
// anchor always end up in the same (Lamport, Replica) order, no matter
// which replica merges them in which sequence.
func (idx *anchorIndex) SiblingShift(a Anchor, run *InsertionRun) int64 {
	var shift int64
	for _, s := range idx.siblings[a] {
		if !higherPriority(s, run) {
			break
		}
		if !s.IsDeleted {
			shift += s.Len()
		}
	}
	return shift
}

// Replace swaps old out for news in a single step, used after a split
// produces one or more replacement runs for a run the index already knows
// about.
func (idx *anchorIndex) Replace(old *InsertionRun, news ...*InsertionRun) {
	idx.Remove(old)
	for _, n := range news {
		idx.Add(n)
	}
}

// Resolve finds the run that currently holds the character named by a, and
// a's offset within that run. It returns ok == false if no known run
// covers a, which means the edit that produced a hasn't arrived yet (or
// never will, if a is garbled).
func (idx *anchorIndex) Resolve(a Anchor) (run *InsertionRun, localOffset int64, ok bool) {
	if cached, hit := idx.cache.Get(a); hit {
		if cached.Replica == a.Replica && cached.Start <= a.CharTS && a.CharTS < cached.End {
			return cached, int64(a.CharTS - cached.Start), true
		}
		idx.cache.Remove(a)
	}

	list := idx.byReplica[a.Replica]
	i := sort.Search(len(list), func(i int) bool { return list[i].End > a.CharTS })
	if i < len(list) && list[i].Start <= a.CharTS {
		idx.cache.Add(a, list[i])
		return list[i], int64(a.CharTS - list[i].Start), true
	}
	return nil, 0, false
}
