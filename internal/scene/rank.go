package scene

import (
	"math"
	"sort"

	"github.com/pkh-dashboard/peta/internal/classify"
)

// sortedByValue returns the rows with finite values ordered highest first.
// Rows without a value are left out of both rankings; equal values keep
// input order.
func sortedByValue(rows []classify.ValueRow) []classify.ValueRow {
	out := make([]classify.ValueRow, 0, len(rows))
	for _, r := range rows {
		if finite(r.Value) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value > out[j].Value
	})
	return out
}

// TopN returns the n rows with the highest values.
func TopN(rows []classify.ValueRow, n int) []classify.ValueRow {
	sorted := sortedByValue(rows)
	if n < 0 {
		n = 0
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// BottomN returns the last n rows of the descending order, so the lowest
// value is last.
func BottomN(rows []classify.ValueRow, n int) []classify.ValueRow {
	sorted := sortedByValue(rows)
	if n < 0 {
		n = 0
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[len(sorted)-n:]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
