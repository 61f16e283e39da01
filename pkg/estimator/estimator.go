package estimator

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// DefaultConfidence is the confidence level used when none is configured.
const DefaultConfidence = 0.95

// CIResult contains confidence interval metadata.
type CIResult struct {
	Estimate        float64 `json:"estimate"`
	StdError        float64 `json:"std_error"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Lower           float64 `json:"ci_low"`
	Upper           float64 `json:"ci_high"`
	RelativeError   float64 `json:"relative_error"`
}

// ZScore returns z for a two-sided confidence level (e.g., 0.95 -> ~1.96).
func ZScore(confidence float64) float64 {
	switch {
	case math.Abs(confidence-0.80) < 1e-9:
		return 1.2815515655446004
	case math.Abs(confidence-0.90) < 1e-9:
		return 1.6448536269514722
	case math.Abs(confidence-0.95) < 1e-9:
		return 1.959963984540054
	case math.Abs(confidence-0.99) < 1e-9:
		return 2.5758293035489004
	default:
		// default to 95%
		return 1.959963984540054
	}
}

func newCI(est, se, confidence float64) CIResult {
	z := ZScore(confidence)
	rel := 0.0
	if est != 0 {
		rel = se / math.Abs(est)
	}
	return CIResult{
		Estimate:        est,
		StdError:        se,
		ConfidenceLevel: confidence,
		Lower:           est - z*se,
		Upper:           est + z*se,
		RelativeError:   rel,
	}
}

// CountCI turns an anonymized count into an interval. The reported noise is
// the standard deviation of the count, so the interval is count ± z·noise.
// The lower bound never drops below zero.
func CountCI(c anon.NoisyCount, confidence float64) CIResult {
	ci := newCI(float64(c.Count), c.Noise(), confidence)
	if ci.Lower < 0 {
		ci.Lower = 0
	}
	return ci
}

// RatioCI is the interval of part/whole when both counts are noisy, using
// first order error propagation.
func RatioCI(part, whole anon.NoisyCount, confidence float64) CIResult {
	if whole.Count == 0 {
		return CIResult{ConfidenceLevel: confidence}
	}
	p := float64(part.Count)
	w := float64(whole.Count)
	r := p / w
	se := math.Sqrt(part.Variance/(w*w) + r*r*whole.Variance/(w*w))
	ci := newCI(r, se, confidence)
	ci.Lower = math.Max(0, ci.Lower)
	return ci
}

// BootstrapCI computes a percentile bootstrap interval for stat over values.
// B is the number of resamples. The caller owns rng so results are
// reproducible.
func BootstrapCI(values []float64, stat func([]float64) float64, B int, confidence float64, rng *rand.Rand) CIResult {
	if len(values) == 0 || B < 2 {
		return CIResult{ConfidenceLevel: confidence}
	}
	n := len(values)
	originalEst := stat(values)

	ests := make([]float64, B)
	resample := make([]float64, n)
	for i := 0; i < B; i++ {
		for j := 0; j < n; j++ {
			resample[j] = values[rng.IntN(n)]
		}
		ests[i] = stat(resample)
	}
	sort.Float64s(ests)

	alpha := 1.0 - confidence
	lowerIdx := int(math.Floor(float64(B) * alpha / 2.0))
	upperIdx := int(math.Ceil(float64(B)*(1.0-alpha/2.0))) - 1
	if lowerIdx < 0 {
		lowerIdx = 0
	}
	if upperIdx >= B {
		upperIdx = B - 1
	}

	mean := 0.0
	for _, e := range ests {
		mean += e
	}
	mean /= float64(B)
	variance := 0.0
	for _, e := range ests {
		variance += (e - mean) * (e - mean)
	}
	variance /= float64(B - 1)
	stdErr := math.Sqrt(variance)

	relErr := 0.0
	if originalEst != 0 {
		relErr = stdErr / math.Abs(originalEst)
	}
	return CIResult{
		Estimate:        originalEst,
		StdError:        stdErr,
		ConfidenceLevel: confidence,
		Lower:           ests[lowerIdx],
		Upper:           ests[upperIdx],
		RelativeError:   relErr,
	}
}

// Mean is a stat function for BootstrapCI.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
