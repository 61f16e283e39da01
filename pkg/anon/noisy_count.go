package anon

import "math"

// NoisyCount is an anonymized count together with the variance of the noise
// the backend added to it.
type NoisyCount struct {
	Count    int64   `json:"count"`
	Variance float64 `json:"variance"`
}

// NewNoisyCount builds a count from the backend's (count, count_noise) pair,
// where noise is a standard deviation.
func NewNoisyCount(count int64, noise float64) NoisyCount {
	return NoisyCount{Count: count, Variance: noise * noise}
}

// NoisyCountFrom builds a count from decoded cells. A missing noise cell means
// the backend reported no noise for that row.
func NoisyCountFrom(count Value[int64], noise Value[float64]) NoisyCount {
	return NewNoisyCount(count.Or(0), noise.Or(0))
}

// Noise is the standard deviation of the count.
func (c NoisyCount) Noise() float64 {
	if c.Variance <= 0 {
		return 0
	}
	return math.Sqrt(c.Variance)
}

// Add sums two independent noisy counts. Variances of independent noise add.
func (c NoisyCount) Add(o NoisyCount) NoisyCount {
	return NoisyCount{Count: c.Count + o.Count, Variance: c.Variance + o.Variance}
}

// SumCounts folds counts with Add.
func SumCounts(counts ...NoisyCount) NoisyCount {
	var total NoisyCount
	for _, c := range counts {
		total = total.Add(c)
	}
	return total
}
