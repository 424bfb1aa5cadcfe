// Package textdiff turns a pair of whole-buffer strings into the sequence
// of Replica.Inserted/Deleted calls that would have produced the second
// from the first, so a caller that only has "before" and "after" snapshots
// (e.g. a browser textarea posting its full contents) can still drive the
// CRDT one run at a time.
package textdiff

import (
	"fmt"
	"unicode/utf8"

	"github.com/brunokim/runtree"
)

// OpType distinguishes the three edit-script operations Diff produces.
type OpType int

const (
	Keep OpType = iota
	Insert
	Delete
)

// Operation is a single step of an edit script turning s1 into s2.
type Operation struct {
	Op   OpType
	Char rune
	Dist int
}

// Diff returns the minimal sequence of keeps, inserts and deletes that
// transforms s1 into s2, computed by the standard Wagner-Fischer dynamic
// program over runes (not bytes, so multi-byte characters aren't split).
func Diff(s1, s2 string) ([]Operation, error) {
	if !utf8.ValidString(s1) {
		return nil, fmt.Errorf("textdiff: s1 is not a valid utf8 string")
	}
	if !utf8.ValidString(s2) {
		return nil, fmt.Errorf("textdiff: s2 is not a valid utf8 string")
	}
	chars1, chars2 := []rune(s1), []rune(s2)
	m, n := len(chars2), len(chars1)
	ops := make([]Operation, (m+1)*(n+1))
	coord := func(i, j int) int {
		return i*(n+1) + j
	}
	for j, ch := range chars1 {
		ops[coord(m, j)] = Operation{Op: Delete, Char: ch, Dist: n - j}
	}
	for i, ch := range chars2 {
		ops[coord(i, n)] = Operation{Op: Insert, Char: ch, Dist: m - i}
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			ch1, ch2 := chars1[j], chars2[i]
			if ch1 == ch2 {
				dist := ops[coord(i+1, j+1)].Dist
				ops[coord(i, j)] = Operation{Op: Keep, Char: ch1, Dist: dist}
				continue
			}
			insertNext := ops[coord(i, j+1)]
			deleteNext := ops[coord(i+1, j)]
			if deleteNext.Dist <= insertNext.Dist {
				ops[coord(i, j)] = Operation{Op: Insert, Char: chars2[i], Dist: 1 + deleteNext.Dist}
			} else {
				ops[coord(i, j)] = Operation{Op: Delete, Char: chars1[j], Dist: 1 + insertNext.Dist}
			}
		}
	}
	var operations []Operation
	var i, j int
	for i < m || j < n {
		op := ops[coord(i, j)]
		operations = append(operations, op)
		switch op.Op {
		case Keep:
			i++
			j++
		case Insert:
			i++
		case Delete:
			j++
		}
	}
	return operations, nil
}

// Distance returns the number of inserts and deletes needed to transform s1
// into s2.
func Distance(s1, s2 string) (int, error) {
	operations, err := Diff(s1, s2)
	if err != nil {
		return 0, err
	}
	if len(operations) == 0 {
		return 0, nil
	}
	return operations[0].Dist, nil
}

// ApplyToReplica diffs oldText against newText and replays the result onto
// r as a minimal sequence of Inserted/Deleted calls, coalescing runs of
// consecutive inserts or deletes into a single call each so that typing a
// whole word doesn't fragment into one run per character. It returns the
// CrdtEdits produced, in the order they were applied.
func ApplyToReplica(r *runtree.Replica, oldText, newText string) ([]runtree.CrdtEdit, error) {
	ops, err := Diff(oldText, newText)
	if err != nil {
		return nil, err
	}

	var edits []runtree.CrdtEdit
	var pos int64
	i := 0
	for i < len(ops) {
		switch ops[i].Op {
		case Keep:
			pos++
			i++

		case Insert:
			start := pos
			var count int64
			for i < len(ops) && ops[i].Op == Insert {
				count++
				i++
			}
			edits = append(edits, r.Inserted(start, count))
			pos += count

		case Delete:
			start := pos
			var count int64
			for i < len(ops) && ops[i].Op == Delete {
				count++
				i++
			}
			edits = append(edits, r.Deleted(start, start+count))
		}
	}
	return edits, nil
}
