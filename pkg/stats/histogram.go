package stats

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// DefaultMaxSuppressedCountRatio admits every candidate, so the finest histogram
// wins regardless of how much of its count is suppressed. Lower it to make
// heavily suppressed candidates lose to coarser ones.
const DefaultMaxSuppressedCountRatio = 1.0

// ErrNoHistogram is returned when no candidate histogram could be built.
var ErrNoHistogram = errors.New("no histogram candidates")

// HistogramBucket is one bucket [LowerBound, LowerBound+BucketSize).
type HistogramBucket struct {
	LowerBound decimal.Decimal `json:"lower_bound"`
	BucketSize decimal.Decimal `json:"bucket_size"`
	Count      int64           `json:"count"`
	Noise      float64         `json:"count_noise"`
}

// Midpoint is where the bucket's mass is assumed to lie.
func (b HistogramBucket) Midpoint() float64 {
	return b.LowerBound.Add(b.BucketSize.Div(decimal.NewFromInt(2))).InexactFloat64()
}

// Histogram is a set of equally sized buckets for one column.
type Histogram struct {
	BucketSize  decimal.Decimal   `json:"bucket_size"`
	Buckets     []HistogramBucket `json:"buckets"`
	ValueCounts ValueCounts       `json:"value_counts"`
}

// TotalCount is the count held by the non-suppressed, non-null buckets.
func (h Histogram) TotalCount() int64 {
	var n int64
	for _, b := range h.Buckets {
		n += b.Count
	}
	return n
}

// HistogramsFromRows splits the rows of a bucketed grouping-sets query into one
// histogram per bucket size. Row labels must be the bucket sizes' strings.
func HistogramsFromRows(sizes []decimal.Decimal, rows []anon.GroupingSetsResult[decimal.Decimal]) ([]Histogram, error) {
	byLabel := make(map[string]*Histogram, len(sizes))
	hs := make([]*Histogram, len(sizes))
	for i, s := range sizes {
		hs[i] = &Histogram{BucketSize: s}
		byLabel[s.String()] = hs[i]
	}
	for _, row := range rows {
		h, ok := byLabel[row.GroupingLabel()]
		if !ok {
			return nil, fmt.Errorf("histogram row for unknown bucket size %q", row.GroupingLabel())
		}
		h.ValueCounts = h.ValueCounts.Add(row)
		lb, ok := row.Value.Get()
		if !ok {
			continue
		}
		h.Buckets = append(h.Buckets, HistogramBucket{
			LowerBound: lb,
			BucketSize: h.BucketSize,
			Count:      row.Count.Count,
			Noise:      row.Count.Noise(),
		})
	}
	out := make([]Histogram, len(hs))
	for i, h := range hs {
		sort.Slice(h.Buckets, func(a, b int) bool { return h.Buckets[a].LowerBound.LessThan(h.Buckets[b].LowerBound) })
		out[i] = *h
	}
	return out, nil
}

// SelectHistogram picks the finest candidate among those whose suppressed count
// ratio stays within maxSuppressedRatio, breaking ties by the smallest
// suppressed count. When no candidate qualifies all of them are considered.
func SelectHistogram(candidates []Histogram, maxSuppressedRatio float64) (Histogram, error) {
	if len(candidates) == 0 {
		return Histogram{}, ErrNoHistogram
	}
	eligible := make([]Histogram, 0, len(candidates))
	for _, h := range candidates {
		if h.ValueCounts.TotalRows > 0 && h.ValueCounts.SuppressedCountRatio() <= maxSuppressedRatio {
			eligible = append(eligible, h)
		}
	}
	if len(eligible) == 0 {
		eligible = append(eligible, candidates...)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if c := eligible[i].BucketSize.Cmp(eligible[j].BucketSize); c != 0 {
			return c < 0
		}
		return eligible[i].ValueCounts.SuppressedCount < eligible[j].ValueCounts.SuppressedCount
	})
	return eligible[0], nil
}

// Quartiles holds the three quartile boundaries.
type Quartiles [3]float64

// InsufficientDataError reports that a statistic could not be derived.
type InsufficientDataError struct {
	Statistic string
	Reason    string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s", e.Statistic, e.Reason)
}

// EstimateQuartiles walks the buckets in ascending order and interpolates each
// quartile boundary linearly inside the bucket that straddles it.
func EstimateQuartiles(h Histogram) (Quartiles, error) {
	var q Quartiles
	total := h.TotalCount()
	if total <= 0 {
		return q, &InsufficientDataError{Statistic: "quartiles", Reason: "histogram is empty"}
	}
	quartileCount := float64(total) / 4
	found := 0
	processed := 0.0
	for _, b := range h.Buckets {
		if found == 3 {
			break
		}
		count := float64(b.Count)
		if count <= 0 {
			continue
		}
		lower := b.LowerBound.InexactFloat64()
		size := b.BucketSize.InexactFloat64()
		for found < 3 {
			boundary := quartileCount * float64(found+1)
			if processed+count < boundary {
				break
			}
			q[found] = lower + size*(boundary-processed)/count
			found++
		}
		processed += count
	}
	if found < 3 {
		return q, &InsufficientDataError{Statistic: "quartiles", Reason: fmt.Sprintf("found %d of 3 boundaries", found)}
	}
	return q, nil
}

// EstimateMean treats each bucket's mass as concentrated at its midpoint.
func EstimateMean(h Histogram) (float64, error) {
	var sum, n float64
	for _, b := range h.Buckets {
		sum += float64(b.Count) * b.Midpoint()
		n += float64(b.Count)
	}
	if n == 0 {
		return 0, &InsufficientDataError{Statistic: "mean", Reason: "histogram is empty"}
	}
	return sum / n, nil
}
