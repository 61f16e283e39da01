// Package stats turns decoded anonymized rows into statistics: value counts,
// histograms, quartiles, empirical distributions and joint distributions.
package stats

import "github.com/sahithikokkula/explorer/pkg/anon"

// Countable is a decoded row that contributes a count to a column summary.
type Countable interface {
	IsNull() bool
	IsSuppressed() bool
	NoisyCount() anon.NoisyCount
}

// ValueCounts accumulates row and count totals over a query result.
// The zero value is the empty fold.
type ValueCounts struct {
	TotalCount      int64 `json:"total_count"`
	SuppressedCount int64 `json:"suppressed_count"`
	NullCount       int64 `json:"null_count"`
	TotalRows       int64 `json:"total_rows"`
	SuppressedRows  int64 `json:"suppressed_rows"`
	NullRows        int64 `json:"null_rows"`
}

// Add folds one row into the totals.
func (v ValueCounts) Add(row Countable) ValueCounts {
	c := row.NoisyCount().Count
	v.TotalRows++
	v.TotalCount += c
	switch {
	case row.IsSuppressed():
		v.SuppressedRows++
		v.SuppressedCount += c
	case row.IsNull():
		v.NullRows++
		v.NullCount += c
	}
	return v
}

// Combine merges two partial folds.
func (v ValueCounts) Combine(o ValueCounts) ValueCounts {
	return ValueCounts{
		TotalCount:      v.TotalCount + o.TotalCount,
		SuppressedCount: v.SuppressedCount + o.SuppressedCount,
		NullCount:       v.NullCount + o.NullCount,
		TotalRows:       v.TotalRows + o.TotalRows,
		SuppressedRows:  v.SuppressedRows + o.SuppressedRows,
		NullRows:        v.NullRows + o.NullRows,
	}
}

// ComputeValueCounts folds all rows.
func ComputeValueCounts[R Countable](rows []R) ValueCounts {
	var v ValueCounts
	for _, r := range rows {
		v = v.Add(r)
	}
	return v
}

func (v ValueCounts) NonSuppressedRows() int64  { return v.TotalRows - v.SuppressedRows }
func (v ValueCounts) NonSuppressedCount() int64 { return v.TotalCount - v.SuppressedCount }

func (v ValueCounts) NonSuppressedNonNullCount() int64 {
	return v.TotalCount - v.SuppressedCount - v.NullCount
}

func (v ValueCounts) SuppressedRowRatio() float64 {
	if v.TotalRows == 0 {
		return 0
	}
	return float64(v.SuppressedRows) / float64(v.TotalRows)
}

func (v ValueCounts) SuppressedCountRatio() float64 {
	if v.TotalCount == 0 {
		return 0
	}
	return float64(v.SuppressedCount) / float64(v.TotalCount)
}
