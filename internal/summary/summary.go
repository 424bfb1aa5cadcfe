// Package summary provides the concrete summary type the insertion-run
// index caches on every gtree node, and the two metrics used to descend it
// by position. The generic Summary/Metric contracts themselves live in
// internal/gtree, since that's the package that consumes them as type
// constraints; LenSummary satisfies them structurally, without gtree ever
// being imported here.
package summary

// LenSummary is the summary carried by every insertion-run leaf: Visible is
// the sum of end-start over alive runs, Total is the same sum including
// tombstoned runs: the structural width that TotalLen descends by.
type LenSummary struct {
	Visible int64
	Total   int64
}

// Add combines two summaries, as required by the monoid contract.
func (s LenSummary) Add(other LenSummary) LenSummary {
	return LenSummary{
		Visible: s.Visible + other.Visible,
		Total:   s.Total + other.Total,
	}
}

// Sub removes other's contribution from s, the inverse of Add.
func (s LenSummary) Sub(other LenSummary) LenSummary {
	return LenSummary{
		Visible: s.Visible - other.Visible,
		Total:   s.Total - other.Total,
	}
}

// VisibleLen measures the user-visible document length: the sum of
// end-start over alive runs.
type VisibleLen struct{}

// Measure implements Metric[LenSummary].
func (VisibleLen) Measure(s LenSummary) int64 { return s.Visible }

// TotalLen measures visible plus tombstoned length. The replica uses it
// when rebuilding a decoded tree, to append each run after every run
// already present, tombstones included.
type TotalLen struct{}

// Measure implements Metric[LenSummary].
func (TotalLen) Measure(s LenSummary) int64 { return s.Total }
