package estimator

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

func TestZScore(t *testing.T) {
	assert.InDelta(t, 1.96, ZScore(0.95), 1e-3)
	assert.InDelta(t, 2.576, ZScore(0.99), 1e-3)
	assert.Equal(t, ZScore(0.95), ZScore(0.5), "unknown levels fall back to 95%")
}

func TestCountCI(t *testing.T) {
	ci := CountCI(anon.NewNoisyCount(100, 2), 0.95)
	assert.Equal(t, 100.0, ci.Estimate)
	assert.Equal(t, 2.0, ci.StdError)
	assert.InDelta(t, 100-2*1.959963984540054, ci.Lower, 1e-9)
	assert.InDelta(t, 100+2*1.959963984540054, ci.Upper, 1e-9)
	assert.InDelta(t, 0.02, ci.RelativeError, 1e-12)

	low := CountCI(anon.NewNoisyCount(1, 5), 0.95)
	assert.Zero(t, low.Lower)
}

func TestRatioCI(t *testing.T) {
	ci := RatioCI(anon.NewNoisyCount(25, 0), anon.NewNoisyCount(100, 0), 0.95)
	assert.Equal(t, 0.25, ci.Estimate)
	assert.Zero(t, ci.StdError)

	empty := RatioCI(anon.NewNoisyCount(5, 1), anon.NoisyCount{}, 0.9)
	assert.Zero(t, empty.Estimate)
	assert.Equal(t, 0.9, empty.ConfidenceLevel)
}

func TestBootstrapCI(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = float64(i % 10)
	}
	rng := rand.New(rand.NewPCG(9, 9))
	ci := BootstrapCI(values, Mean, 500, 0.95, rng)
	require.NotZero(t, ci.StdError)
	assert.InDelta(t, 4.5, ci.Estimate, 1e-12)
	assert.Less(t, ci.Lower, ci.Estimate)
	assert.Greater(t, ci.Upper, ci.Estimate)

	again := BootstrapCI(values, Mean, 500, 0.95, rand.New(rand.NewPCG(9, 9)))
	assert.Equal(t, ci, again)

	assert.Equal(t, CIResult{ConfidenceLevel: 0.95}, BootstrapCI(nil, Mean, 10, 0.95, rng))
}
