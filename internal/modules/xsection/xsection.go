// Package xsection provides stateless cross-sectional operations over one
// date's vector of per-asset values. All functions treat NaN entries as
// missing: they are ignored when computing statistics and preserved in the
// output.
//
// Percentiles use linear interpolation between order statistics (position
// p*(n-1)), pinned here so results are reproducible bit for bit.
package xsection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/factorlab/internal/modules/panel"
)

// finite returns the finite entries of v, and optionally the matching weights.
func finite(v, w []float64) ([]float64, []float64) {
	fv := make([]float64, 0, len(v))
	var fw []float64
	if w != nil {
		fw = make([]float64, 0, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		fv = append(fv, x)
		if w != nil {
			fw = append(fw, w[i])
		}
	}
	return fv, fw
}

// Center subtracts the mean from each value. When weights is non-nil it must
// be the same length as values and the weighted mean is used. Fails when
// fewer than 2 finite values are present.
func Center(values, weights []float64) ([]float64, error) {
	if weights != nil && len(weights) != len(values) {
		return nil, fmt.Errorf("%w: weights length %d != values length %d", panel.ErrSchemaMismatch, len(weights), len(values))
	}
	fv, fw := finite(values, weights)
	if len(fv) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 finite values to center, got %d", panel.ErrInsufficientData, len(fv))
	}
	mean := stat.Mean(fv, fw)
	out := make([]float64, len(values))
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = x - mean
	}
	return out, nil
}

// Standardize centers the values and divides by the sample standard
// deviation. A zero standard deviation leaves the values centered only.
func Standardize(values, weights []float64) ([]float64, error) {
	centered, err := Center(values, weights)
	if err != nil {
		return nil, err
	}
	fv, fw := finite(centered, weights)
	sd := stat.StdDev(fv, fw)
	if sd == 0 || math.IsNaN(sd) {
		return centered, nil
	}
	for i := range centered {
		centered[i] /= sd
	}
	return centered, nil
}

// Normalize rescales values into [lo, hi] using the finite min and max.
// Constant input (min == max) maps to zeros rather than dividing by zero.
func Normalize(values []float64, lo, hi float64) ([]float64, error) {
	if lo >= hi {
		return nil, fmt.Errorf("%w: normalize range [%v, %v] is empty", panel.ErrInvalidConfig, lo, hi)
	}
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		minV = math.Min(minV, x)
		maxV = math.Max(maxV, x)
	}
	out := make([]float64, len(values))
	span := maxV - minV
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = math.NaN()
			continue
		}
		if span <= 0 || math.IsInf(span, 0) {
			out[i] = 0
			continue
		}
		out[i] = (x-minV)/span*(hi-lo) + lo
	}
	return out, nil
}

// Percentile computes the p-quantile of the finite entries of values using
// linear interpolation between order statistics. Returns NaN when no finite
// values exist.
func Percentile(values []float64, p float64) float64 {
	fv, _ := finite(values, nil)
	if len(fv) == 0 {
		return math.NaN()
	}
	sort.Float64s(fv)
	if len(fv) == 1 {
		return fv[0]
	}
	pos := p * float64(len(fv)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return fv[lo]
	}
	frac := pos - float64(lo)
	return fv[lo]*(1-frac) + fv[hi]*frac
}

// Winsorize clips values below the p-th percentile and above the (1-p)-th
// percentile to those bounds. p must be in [0, 0.5); p == 0 is a no-op.
func Winsorize(values []float64, p float64) ([]float64, error) {
	if p < 0 || p >= 0.5 {
		return nil, fmt.Errorf("%w: winsorization fraction %v outside [0, 0.5)", panel.ErrInvalidConfig, p)
	}
	out := append([]float64(nil), values...)
	if p == 0 || len(values) == 0 {
		return out, nil
	}
	lo := Percentile(values, p)
	hi := Percentile(values, 1-p)
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return out, nil
	}
	for i, x := range out {
		if math.IsNaN(x) {
			continue
		}
		out[i] = math.Min(math.Max(x, lo), hi)
	}
	return out, nil
}

// PercentileMask returns an indicator selecting the values inside the
// [lo, hi] percentile band (inclusive). NaN entries are never selected.
func PercentileMask(values []float64, lo, hi float64) ([]bool, error) {
	if lo < 0 || hi > 1 || lo > hi {
		return nil, fmt.Errorf("%w: percentile band [%v, %v] invalid", panel.ErrInvalidConfig, lo, hi)
	}
	lower := Percentile(values, lo)
	upper := Percentile(values, hi)
	out := make([]bool, len(values))
	for i, x := range values {
		if math.IsNaN(x) {
			continue
		}
		out[i] = x >= lower && x <= upper
	}
	return out, nil
}

// ExpWeights produces n exponential-decay weights normalized to sum to 1.
// Index 0 is the oldest observation; the newest has the largest weight.
// Weight i is proportional to 0.5^((n-1-i)/halfLife).
func ExpWeights(n int, halfLife float64) ([]float64, error) {
	if halfLife <= 0 {
		return nil, fmt.Errorf("%w: half-life must be > 0, got %v", panel.ErrInvalidConfig, halfLife)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: weight count must be >= 0, got %d", panel.ErrInvalidConfig, n)
	}
	out := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		out[i] = math.Pow(0.5, float64(n-1-i)/halfLife)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}
