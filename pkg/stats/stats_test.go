package stats

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func groupingID(i, n int) int {
	id, err := anon.GroupingIDFromIndex(i, n)
	if err != nil {
		panic(err)
	}
	return id
}

func row(label int, labels []string, v anon.Value[decimal.Decimal], count int64) anon.GroupingSetsResult[decimal.Decimal] {
	return anon.GroupingSetsResult[decimal.Decimal]{
		GroupingID: groupingID(label, len(labels)),
		Labels:     labels,
		Value:      v,
		Count:      anon.NewNoisyCount(count, 1),
	}
}

func TestValueCounts_Empty(t *testing.T) {
	v := ComputeValueCounts[anon.GroupingSetsResult[int64]](nil)
	assert.Equal(t, ValueCounts{}, v)
	assert.Zero(t, v.SuppressedRowRatio())
	assert.Zero(t, v.SuppressedCountRatio())
}

func TestValueCounts_FoldIsAssociative(t *testing.T) {
	labels := []string{"x"}
	rows := []anon.GroupingSetsResult[decimal.Decimal]{
		row(0, labels, anon.Data(dec("1")), 10),
		row(0, labels, anon.Suppressed[decimal.Decimal](), 3),
		row(0, labels, anon.Null[decimal.Decimal](), 4),
		row(0, labels, anon.Data(dec("2")), 7),
		row(0, labels, anon.Suppressed[decimal.Decimal](), 2),
	}
	whole := ComputeValueCounts(rows)
	for split := 0; split <= len(rows); split++ {
		left := ComputeValueCounts(rows[:split])
		right := ComputeValueCounts(rows[split:])
		assert.Equal(t, whole, left.Combine(right), "split at %d", split)
	}
	assert.Equal(t, int64(26), whole.TotalCount)
	assert.Equal(t, int64(5), whole.SuppressedCount)
	assert.Equal(t, int64(4), whole.NullCount)
	assert.Equal(t, int64(2), whole.SuppressedRows)
	assert.Equal(t, int64(17), whole.NonSuppressedNonNullCount())
	assert.InDelta(t, 0.4, whole.SuppressedRowRatio(), 1e-12)
}

func TestEstimateBucketResolutions(t *testing.T) {
	sizes, err := EstimateBucketResolutions(1000, 0, 100, 20, false)
	require.NoError(t, err)
	require.Len(t, sizes, 3)
	assert.True(t, sizes[0].Equal(dec("0.5")))
	assert.True(t, sizes[1].Equal(dec("2")))
	assert.True(t, sizes[2].Equal(dec("10")))
	for i := 1; i < len(sizes); i++ {
		assert.True(t, sizes[i-1].LessThan(sizes[i]))
	}
}

func TestEstimateBucketResolutions_Degenerate(t *testing.T) {
	sizes, err := EstimateBucketResolutions(50, 3, 3, 20, true)
	require.NoError(t, err)
	require.Len(t, sizes, 1)
	assert.True(t, sizes[0].Equal(decimal.NewFromInt(1)))

	_, err = EstimateBucketResolutions(0, 0, 10, 20, false)
	assert.True(t, errors.Is(err, ErrNoSamples))
	_, err = EstimateBucketResolutions(-5, 0, 10, 20, false)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestEstimateBucketResolutions_IntegerClamp(t *testing.T) {
	sizes, err := EstimateBucketResolutions(100000, 0, 10, 20, true)
	require.NoError(t, err)
	require.Len(t, sizes, 3)
	assert.True(t, sizes[0].Equal(dec("1")))
	assert.True(t, sizes[1].Equal(dec("5")))
	assert.True(t, sizes[2].Equal(dec("20")))
}

func TestBucketSize_Steps(t *testing.T) {
	b := NewBucketSize(3)
	assert.Equal(t, "5", b.String())
	assert.Equal(t, "10", b.Larger(1).String())
	assert.Equal(t, "0.5", b.Smaller(3).String())
	assert.Equal(t, "0.2", b.Smaller(4).String())
	assert.Equal(t, "1", NewBucketSize(1).String())
	assert.Equal(t, "100", NewBucketSize(51).String())
}

func uniformHistogram() Histogram {
	h := Histogram{BucketSize: dec("10")}
	for i := 0; i < 4; i++ {
		h.Buckets = append(h.Buckets, HistogramBucket{
			LowerBound: decimal.NewFromInt(int64(i * 10)),
			BucketSize: dec("10"),
			Count:      40,
		})
	}
	return h
}

func TestEstimateQuartiles(t *testing.T) {
	q, err := EstimateQuartiles(uniformHistogram())
	require.NoError(t, err)
	assert.InDelta(t, 10, q[0], 1e-9)
	assert.InDelta(t, 20, q[1], 1e-9)
	assert.InDelta(t, 30, q[2], 1e-9)
}

func TestEstimateQuartiles_Insufficient(t *testing.T) {
	_, err := EstimateQuartiles(Histogram{BucketSize: dec("1")})
	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, "quartiles", ide.Statistic)
}

func TestEstimateMean(t *testing.T) {
	m, err := EstimateMean(uniformHistogram())
	require.NoError(t, err)
	assert.InDelta(t, 20, m, 1e-9)

	_, err = EstimateMean(Histogram{})
	assert.Error(t, err)
}

func TestHistogramsFromRowsAndSelect(t *testing.T) {
	sizes := []decimal.Decimal{dec("1"), dec("5")}
	labels := []string{"1", "5"}
	rows := []anon.GroupingSetsResult[decimal.Decimal]{
		row(0, labels, anon.Data(dec("3")), 10),
		row(0, labels, anon.Data(dec("1")), 10),
		row(0, labels, anon.Suppressed[decimal.Decimal](), 30),
		row(1, labels, anon.Data(dec("0")), 25),
		row(1, labels, anon.Data(dec("5")), 25),
	}
	hs, err := HistogramsFromRows(sizes, rows)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Len(t, hs[0].Buckets, 2)
	assert.True(t, hs[0].Buckets[0].LowerBound.Equal(dec("1")), "buckets sorted by lower bound")
	assert.Equal(t, int64(30), hs[0].ValueCounts.SuppressedCount)

	// The finest candidate wins by default even though 60% of its count is
	// suppressed.
	best, err := SelectHistogram(hs, DefaultMaxSuppressedCountRatio)
	require.NoError(t, err)
	assert.True(t, best.BucketSize.Equal(dec("1")))

	// A strict threshold lets the coarser, unsuppressed one win.
	best, err = SelectHistogram(hs, 0.25)
	require.NoError(t, err)
	assert.True(t, best.BucketSize.Equal(dec("5")))

	_, err = SelectHistogram(nil, 1)
	assert.ErrorIs(t, err, ErrNoHistogram)
}

func TestHistogramsFromRows_UnknownLabel(t *testing.T) {
	rows := []anon.GroupingSetsResult[decimal.Decimal]{row(0, []string{"7"}, anon.Data(dec("1")), 1)}
	_, err := HistogramsFromRows([]decimal.Decimal{dec("1")}, rows)
	assert.Error(t, err)
}

func TestDistribution(t *testing.T) {
	d, err := NewDistribution([]WeightedSample{{Value: 1, Weight: 1}, {Value: 2, Weight: 2}, {Value: 3, Weight: 1}})
	require.NoError(t, err)
	assert.InDelta(t, 2, d.Mean(), 1e-12)
	assert.InDelta(t, 0.5, d.Variance(), 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), d.StandardDeviation(), 1e-12)
	assert.Equal(t, 2.0, d.Mode())
	assert.Equal(t, Quartiles{1, 2, 2}, d.Quartiles())
	e, ok := d.Entropy()
	require.True(t, ok)
	assert.InDelta(t, 1.5, e, 1e-12)

	rng := rand.New(rand.NewPCG(1, 2))
	samples := d.Generate(rng, 4000)
	counts := map[float64]int{}
	for _, s := range samples {
		counts[s]++
	}
	assert.Len(t, counts, 3)
	assert.InDelta(t, 2000, counts[2], 200)
}

func TestDistribution_Degenerate(t *testing.T) {
	d, err := NewDistribution([]WeightedSample{{Value: 5, Weight: 10}})
	require.NoError(t, err)
	_, ok := d.Entropy()
	assert.False(t, ok)
	assert.Nil(t, d.Summary().Entropy)

	_, err = NewDistribution([]WeightedSample{{Value: 5, Weight: 0}})
	assert.ErrorIs(t, err, ErrEmptyDistribution)
}

func TestDistributionFromHistogram_StaysInRange(t *testing.T) {
	d, err := DistributionFromHistogram(uniformHistogram())
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(3, 4))
	for _, v := range d.Generate(rng, 1000) {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 40.0)
	}
	assert.InDelta(t, 20, d.Mean(), 1e-9)
}

func TestJointProbabilityMatrix_SamplingRoundTrip(t *testing.T) {
	m := NewJointProbabilityMatrix(2)
	input := map[string]int64{"a|x": 500, "a|y": 250, "b|x": 150, "b|y": 100}
	order := []Index{{"a", "x"}, {"a", "y"}, {"b", "x"}, {"b", "y"}}
	for _, ix := range order {
		m.Insert(ix, anon.NewNoisyCount(input[ix[0]+"|"+ix[1]], 1))
	}
	m.InsertSuppressed(anon.NewNoisyCount(1000, 1))

	rng := rand.New(rand.NewPCG(42, 7))
	const draws = 200000
	got := map[string]int{}
	for i := 0; i < draws; i++ {
		ix, ok := m.Sample(rng)
		require.True(t, ok)
		got[ix[0]+"|"+ix[1]]++
	}
	assert.Len(t, got, 4)
	for k, want := range input {
		expected := float64(want) / 1000
		assert.InDelta(t, expected, float64(got[k])/draws, 0.01, k)
	}
	assert.Equal(t, int64(1000), m.TotalCount().Count)
	assert.Equal(t, int64(1000), m.SuppressedCount().Count)
}

func TestJointProbabilityMatrix_RebuildsAfterInsert(t *testing.T) {
	m := NewJointProbabilityMatrix(1)
	rng := rand.New(rand.NewPCG(1, 1))
	_, ok := m.Sample(rng)
	assert.False(t, ok)

	m.Insert(Index{"only"}, anon.NewNoisyCount(5, 0))
	ix, ok := m.Sample(rng)
	require.True(t, ok)
	assert.Equal(t, Index{"only"}, ix)

	m.Insert(Index{"other"}, anon.NewNoisyCount(5, 0))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		ix, _ := m.Sample(rng)
		seen[ix[0]] = true
	}
	assert.True(t, seen["other"])
	assert.Len(t, seen, 2)
}

func TestJointProbabilityMatrix_CorrelationFactor(t *testing.T) {
	diag := NewJointProbabilityMatrix(2)
	for _, v := range []string{"1", "2", "3"} {
		diag.Insert(Index{v, v}, anon.NewNoisyCount(10, 0))
	}
	assert.Equal(t, 1.0, diag.CorrelationFactor())

	indep := NewJointProbabilityMatrix(2)
	for _, a := range []string{"1", "2", "3", "4"} {
		for _, b := range []string{"x", "y", "z", "w"} {
			indep.Insert(Index{a, b}, anon.NewNoisyCount(10, 0))
		}
	}
	assert.InDelta(t, 0.5, indep.CorrelationFactor(), 1e-12)
}

func timeRows(units []TimeUnit, counts map[TimeUnit][]int64, suppressed map[TimeUnit]int) []anon.GroupingSetsResult[time.Time] {
	labels := make([]string, len(units))
	for i, u := range units {
		labels[i] = string(u)
	}
	var rows []anon.GroupingSetsResult[time.Time]
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, u := range units {
		for j, c := range counts[u] {
			rows = append(rows, anon.GroupingSetsResult[time.Time]{
				GroupingID: groupingID(i, len(units)),
				Labels:     labels,
				Value:      anon.Data(base.AddDate(j, 0, 0)),
				Count:      anon.NewNoisyCount(c, 0),
			})
		}
		for k := 0; k < suppressed[u]; k++ {
			rows = append(rows, anon.GroupingSetsResult[time.Time]{
				GroupingID: groupingID(i, len(units)),
				Labels:     labels,
				Value:      anon.Suppressed[time.Time](),
				Count:      anon.NewNoisyCount(2, 0),
			})
		}
	}
	return rows
}

func TestLinearTimeBuckets_StopAtSuppression(t *testing.T) {
	units := []TimeUnit{Year, Month, Day}
	rows := timeRows(units,
		map[TimeUnit][]int64{Year: {100, 100}, Month: {20, 20, 20, 20, 20, 20, 20, 20, 20, 20}, Day: {5, 5}},
		map[TimeUnit]int{Month: 1, Day: 5},
	)
	grouped, err := GroupByUnit(units, rows)
	require.NoError(t, err)
	selected := SelectLinearUnits(grouped)
	require.Len(t, selected, 2)
	assert.Equal(t, Year, selected[0].Unit)
	assert.Equal(t, Month, selected[1].Unit)
	assert.Equal(t, 2, grouped[0].DistinctBuckets())
}

func TestCyclicalTimeBuckets_SkipUntilTwoCycles(t *testing.T) {
	linear, err := GroupByUnit([]TimeUnit{Year, Month}, timeRows(
		[]TimeUnit{Year, Month},
		map[TimeUnit][]int64{Year: {100}, Month: {10, 10, 10}},
		nil,
	))
	require.NoError(t, err)

	cyclicalUnits := []TimeUnit{Quarter, Month, Day}
	cyc, err := GroupByUnit(cyclicalUnits, timeRows(
		cyclicalUnits,
		map[TimeUnit][]int64{Quarter: {50, 50}, Month: {10, 10}, Day: {5, 5}},
		nil,
	))
	require.NoError(t, err)

	// One year seen: quarter and month are skipped, day qualifies via months.
	selected := SelectCyclicalUnits(cyc, linear)
	require.Len(t, selected, 1)
	assert.Equal(t, Day, selected[0].Unit)

	linear[0].Buckets = append(linear[0].Buckets, TimeBucket[time.Time]{Value: anon.Data(time.Now()), Count: 50})
	selected = SelectCyclicalUnits(cyc, linear)
	require.Len(t, selected, 3)
	assert.Equal(t, Quarter, selected[0].Unit)
}
