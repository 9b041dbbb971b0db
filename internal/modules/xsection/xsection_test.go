package xsection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorlab/internal/modules/panel"
)

func TestCenter_RemovesMean(t *testing.T) {
	out, err := Center([]float64{1, 2, 3, 4, 5}, nil)
	require.NoError(t, err)

	sum := 0.0
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-12)
}

func TestCenter_WeightedMean(t *testing.T) {
	// Weighted mean of {1, 3} with weights {3, 1} is 1.5.
	out, err := Center([]float64{1, 3}, []float64{3, 1})
	require.NoError(t, err)

	assert.InDelta(t, -0.5, out[0], 1e-12)
	assert.InDelta(t, 1.5, out[1], 1e-12)
}

func TestCenter_PreservesNaN(t *testing.T) {
	out, err := Center([]float64{1, math.NaN(), 3}, nil)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, -1, out[0], 1e-12)
}

func TestCenter_TooFewValues(t *testing.T) {
	_, err := Center([]float64{1, math.NaN()}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, panel.ErrInsufficientData)
}

func TestStandardize_UnitVariance(t *testing.T) {
	out, err := Standardize([]float64{1, 2, 3, 4, 5}, nil)
	require.NoError(t, err)

	mean, sumSq := 0.0, 0.0
	for _, v := range out {
		mean += v
	}
	mean /= float64(len(out))
	for _, v := range out {
		sumSq += (v - mean) * (v - mean)
	}
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, sumSq/float64(len(out)-1), 1e-12)
}

func TestStandardize_ConstantInput(t *testing.T) {
	out, err := Standardize([]float64{2, 2, 2}, nil)
	require.NoError(t, err)

	for _, v := range out {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestNormalize_TargetRange(t *testing.T) {
	out, err := Normalize([]float64{0, 25, 50, 75, 100}, -1, 1)
	require.NoError(t, err)

	assert.InDelta(t, -1, out[0], 1e-12)
	assert.InDelta(t, 0, out[2], 1e-12)
	assert.InDelta(t, 1, out[4], 1e-12)
}

func TestNormalize_ConstantInputMapsToZeros(t *testing.T) {
	out, err := Normalize([]float64{5, 5, 5}, -1, 1)
	require.NoError(t, err)

	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestNormalize_EmptyRange(t *testing.T) {
	_, err := Normalize([]float64{1, 2}, 1, 1)
	assert.ErrorIs(t, err, panel.ErrInvalidConfig)
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	values := []float64{10, 20, 30, 40}

	// Position 0.25*(4-1) = 0.75 interpolates between 10 and 20.
	assert.InDelta(t, 17.5, Percentile(values, 0.25), 1e-12)
	assert.InDelta(t, 10, Percentile(values, 0), 1e-12)
	assert.InDelta(t, 40, Percentile(values, 1), 1e-12)
	assert.InDelta(t, 25, Percentile(values, 0.5), 1e-12)
}

func TestWinsorize_ClipsToBounds(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100}
	out, err := Winsorize(values, 0.1)
	require.NoError(t, err)

	lo := Percentile(values, 0.1)
	hi := Percentile(values, 0.9)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
	// Interior values are untouched.
	assert.Equal(t, 5.0, out[4])
	assert.Equal(t, 6.0, out[5])
}

func TestWinsorize_ZeroIsNoOp(t *testing.T) {
	values := []float64{3, 1, 100}
	out, err := Winsorize(values, 0)
	require.NoError(t, err)
	assert.Equal(t, values, out)
}

func TestWinsorize_InvalidFraction(t *testing.T) {
	for _, p := range []float64{-0.1, 0.5, 0.6} {
		_, err := Winsorize([]float64{1, 2, 3}, p)
		assert.ErrorIs(t, err, panel.ErrInvalidConfig, "p=%v", p)
	}
}

func TestWinsorize_PreservesNaN(t *testing.T) {
	out, err := Winsorize([]float64{1, math.NaN(), 3, 4, 5}, 0.1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[1]))
}

func TestPercentileMask_SelectsInterior(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	mask, err := PercentileMask(values, 0.2, 0.8)
	require.NoError(t, err)

	assert.False(t, mask[0])
	assert.True(t, mask[4])
	assert.False(t, mask[9])
}

func TestExpWeights_SumToOne(t *testing.T) {
	w, err := ExpWeights(20, 5)
	require.NoError(t, err)

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-12)
}

func TestExpWeights_NonIncreasingTowardOldest(t *testing.T) {
	w, err := ExpWeights(10, 3)
	require.NoError(t, err)

	for i := 1; i < len(w); i++ {
		assert.Greater(t, w[i], w[i-1])
	}
}

func TestExpWeights_HalfLifeRatio(t *testing.T) {
	w, err := ExpWeights(252, 126)
	require.NoError(t, err)

	// The weight half a life older than the newest is half as large.
	newest := w[len(w)-1]
	older := w[len(w)-1-126]
	assert.InDelta(t, 0.5, older/newest, 1e-9)
}

func TestExpWeights_InvalidHalfLife(t *testing.T) {
	_, err := ExpWeights(10, 0)
	assert.ErrorIs(t, err, panel.ErrInvalidConfig)

	_, err = ExpWeights(10, -1)
	assert.ErrorIs(t, err, panel.ErrInvalidConfig)
}
