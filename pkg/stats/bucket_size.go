package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// niceMantissas are the leading digits a bucket size may have.
var niceMantissas = []int64{1, 2, 5}

// MinIntegerBucketSize is the smallest target bucket size for integer columns.
const MinIntegerBucketSize = 5.0

// ErrNoSamples is returned when a resolution is requested for an empty column.
var ErrNoSamples = errors.New("sample count must be positive")

// BucketSize is a "nice" bucket width: 1, 2 or 5 times a power of ten.
type BucketSize struct {
	mantissa int // index into niceMantissas
	exponent int32
}

// NewBucketSize snaps target up to the nearest nice size.
func NewBucketSize(target float64) BucketSize {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return BucketSize{}
	}
	exp := int32(math.Floor(math.Log10(target)))
	m := target / math.Pow(10, float64(exp))
	const eps = 1e-9
	for i, nice := range niceMantissas {
		if m <= float64(nice)+eps {
			return BucketSize{mantissa: i, exponent: exp}
		}
	}
	return BucketSize{mantissa: 0, exponent: exp + 1}
}

// Larger returns the size steps positions further up the nice sequence.
func (b BucketSize) Larger(steps int) BucketSize {
	pos := int(b.exponent)*len(niceMantissas) + b.mantissa + steps
	exp := floorDiv(pos, len(niceMantissas))
	return BucketSize{mantissa: pos - exp*len(niceMantissas), exponent: int32(exp)}
}

// Smaller returns the size steps positions further down the nice sequence.
func (b BucketSize) Smaller(steps int) BucketSize {
	return b.Larger(-steps)
}

// Decimal is the exact bucket width.
func (b BucketSize) Decimal() decimal.Decimal {
	return decimal.New(niceMantissas[b.mantissa], b.exponent)
}

func (b BucketSize) Float64() float64 {
	return b.Decimal().InexactFloat64()
}

func (b BucketSize) String() string {
	return b.Decimal().String()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// EstimateBucketResolutions proposes candidate bucket sizes for a numeric
// column from its sample count and value range. It returns up to three
// ascending, distinct sizes centered on the size that would place roughly
// valuesPerBucket samples in each bucket.
func EstimateBucketResolutions(numSamples int64, min, max float64, valuesPerBucket int64, isInteger bool) ([]decimal.Decimal, error) {
	if numSamples <= 0 {
		return nil, fmt.Errorf("estimate bucket resolutions: %w (got %d)", ErrNoSamples, numSamples)
	}
	if valuesPerBucket <= 0 {
		return nil, fmt.Errorf("estimate bucket resolutions: values per bucket must be positive (got %d)", valuesPerBucket)
	}
	if max == min {
		return []decimal.Decimal{decimal.NewFromInt(1)}, nil
	}
	if max < min {
		min, max = max, min
	}

	density := float64(numSamples) / (max - min)
	target := float64(valuesPerBucket) / density
	if isInteger && target < MinIntegerBucketSize {
		target = MinIntegerBucketSize
	}

	size := NewBucketSize(target)
	candidates := []BucketSize{size.Smaller(2), size, size.Larger(2)}

	out := make([]decimal.Decimal, 0, len(candidates))
	for _, c := range candidates {
		d := c.Decimal()
		if isInteger && d.LessThan(decimal.NewFromInt(1)) {
			continue
		}
		dup := false
		for _, o := range out {
			if o.Equal(d) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out, nil
}
