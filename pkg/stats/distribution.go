package stats

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// ErrEmptyDistribution is returned when a distribution has no positive weight.
var ErrEmptyDistribution = errors.New("distribution has no samples")

// WeightedSample is a value observed Weight times. A positive Width spreads
// the mass uniformly over [Value, Value+Width).
type WeightedSample struct {
	Value  float64
	Weight int64
	Width  float64
}

// Distribution is a weighted empirical distribution.
type Distribution struct {
	samples    []WeightedSample
	cumulative []int64
	total      int64
}

// NewDistribution builds a distribution from samples; non-positive weights are
// dropped.
func NewDistribution(samples []WeightedSample) (*Distribution, error) {
	d := &Distribution{}
	for _, s := range samples {
		if s.Weight <= 0 || math.IsNaN(s.Value) {
			continue
		}
		d.samples = append(d.samples, s)
	}
	if len(d.samples) == 0 {
		return nil, ErrEmptyDistribution
	}
	sort.SliceStable(d.samples, func(i, j int) bool { return d.samples[i].Value < d.samples[j].Value })
	d.cumulative = make([]int64, len(d.samples))
	for i, s := range d.samples {
		d.total += s.Weight
		d.cumulative[i] = d.total
	}
	return d, nil
}

// DistributionFromHistogram spreads each bucket's count across its width.
func DistributionFromHistogram(h Histogram) (*Distribution, error) {
	samples := make([]WeightedSample, 0, len(h.Buckets))
	for _, b := range h.Buckets {
		samples = append(samples, WeightedSample{
			Value:  b.LowerBound.InexactFloat64(),
			Weight: b.Count,
			Width:  b.BucketSize.InexactFloat64(),
		})
	}
	return NewDistribution(samples)
}

func (d *Distribution) TotalWeight() int64 { return d.total }

// Generate draws n independent values.
func (d *Distribution) Generate(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		s := d.samples[d.pick(rng.Int64N(d.total))]
		v := s.Value
		if s.Width > 0 {
			v += rng.Float64() * s.Width
		}
		out[i] = v
	}
	return out
}

// pick returns the sample index holding cumulative position x in [0, total).
func (d *Distribution) pick(x int64) int {
	return sort.Search(len(d.cumulative), func(i int) bool { return d.cumulative[i] > x })
}

func (d *Distribution) center(s WeightedSample) float64 {
	return s.Value + s.Width/2
}

func (d *Distribution) Mean() float64 {
	var sum float64
	for _, s := range d.samples {
		sum += d.center(s) * float64(s.Weight)
	}
	return sum / float64(d.total)
}

// Variance is the population variance, including the spread inside each
// sample's width.
func (d *Distribution) Variance() float64 {
	mean := d.Mean()
	var sum float64
	for _, s := range d.samples {
		dev := d.center(s) - mean
		sum += float64(s.Weight) * (dev*dev + s.Width*s.Width/12)
	}
	return sum / float64(d.total)
}

func (d *Distribution) StandardDeviation() float64 {
	return math.Sqrt(d.Variance())
}

// Mode is the center of the heaviest sample.
func (d *Distribution) Mode() float64 {
	best := d.samples[0]
	for _, s := range d.samples[1:] {
		if s.Weight > best.Weight {
			best = s
		}
	}
	return d.center(best)
}

// Quantile returns the p-quantile, interpolating inside sample widths.
func (d *Distribution) Quantile(p float64) float64 {
	if p <= 0 {
		return d.samples[0].Value
	}
	if p >= 1 {
		last := d.samples[len(d.samples)-1]
		return last.Value + last.Width
	}
	target := p * float64(d.total)
	var before float64
	for _, s := range d.samples {
		w := float64(s.Weight)
		if before+w >= target {
			if s.Width == 0 {
				return s.Value
			}
			return s.Value + s.Width*(target-before)/w
		}
		before += w
	}
	last := d.samples[len(d.samples)-1]
	return last.Value + last.Width
}

func (d *Distribution) Quartiles() Quartiles {
	return Quartiles{d.Quantile(0.25), d.Quantile(0.5), d.Quantile(0.75)}
}

// Entropy is the Shannon entropy in bits of the sample weights. It is absent
// for a degenerate distribution with a single sample.
func (d *Distribution) Entropy() (float64, bool) {
	if len(d.samples) < 2 {
		return 0, false
	}
	var h float64
	for _, s := range d.samples {
		p := float64(s.Weight) / float64(d.total)
		h -= p * math.Log2(p)
	}
	return h, true
}

// Summary collects the descriptive statistics of a distribution.
type Summary struct {
	Mean              float64   `json:"mean"`
	Mode              float64   `json:"mode"`
	Quartiles         Quartiles `json:"quartiles"`
	StandardDeviation float64   `json:"standard_deviation"`
	Variance          float64   `json:"variance"`
	Entropy           *float64  `json:"entropy,omitempty"`
}

func (d *Distribution) Summary() Summary {
	s := Summary{
		Mean:              d.Mean(),
		Mode:              d.Mode(),
		Quartiles:         d.Quartiles(),
		StandardDeviation: d.StandardDeviation(),
		Variance:          d.Variance(),
	}
	if e, ok := d.Entropy(); ok {
		s.Entropy = &e
	}
	return s
}
