// Package linalg implements the weighted least squares solver used by the
// factor-return estimator, including the sector-constrained variant that
// resolves the collinearity between sector dummies and the market intercept.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/factorlab/internal/modules/panel"
)

// DefaultConditionLimit is the condition-number tolerance beyond which the
// weighted design matrix is treated as rank deficient.
const DefaultConditionLimit = 1e12

// WLSResult holds the output of a weighted least squares fit.
type WLSResult struct {
	// Coeffs are the fitted coefficients, one per design column.
	Coeffs []float64
	// Residuals are y - X*beta, one per observation.
	Residuals []float64
}

// SolveWLS solves the weighted least squares problem
//
//	argmin_beta sum_i w_i * (y_i - x_i . beta)^2
//
// by scaling the rows of X and y by sqrt(w) and QR-factorizing the scaled
// design, which is equivalent to solving the normal equations but better
// conditioned. Weights must be non-negative. condLimit <= 0 selects
// DefaultConditionLimit.
//
// Fails with panel.ErrRankDeficient when there are fewer observations than
// regressors or the weighted design's condition number exceeds the limit.
func SolveWLS(x *mat.Dense, y, w []float64, condLimit float64) (*WLSResult, error) {
	n, p := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("%w: response length %d != %d rows", panel.ErrSchemaMismatch, len(y), n)
	}
	if len(w) != n {
		return nil, fmt.Errorf("%w: weight length %d != %d rows", panel.ErrSchemaMismatch, len(w), n)
	}
	if p == 0 {
		return nil, fmt.Errorf("%w: design matrix has no columns", panel.ErrSchemaMismatch)
	}
	if n < p {
		return nil, fmt.Errorf("%w: %d observations for %d regressors", panel.ErrRankDeficient, n, p)
	}
	if condLimit <= 0 {
		condLimit = DefaultConditionLimit
	}

	xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if w[i] < 0 || math.IsNaN(w[i]) {
			return nil, fmt.Errorf("%w: weight %v at row %d", panel.ErrSchemaMismatch, w[i], i)
		}
		s := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, x.At(i, j)*s)
		}
		yw.SetVec(i, y[i]*s)
	}

	if cond := mat.Cond(xw, 2); math.IsInf(cond, 0) || math.IsNaN(cond) || cond > condLimit {
		return nil, fmt.Errorf("%w: condition number %.3g exceeds limit %.3g", panel.ErrRankDeficient, cond, condLimit)
	}

	var qr mat.QR
	qr.Factorize(xw)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yw); err != nil {
		return nil, fmt.Errorf("%w: %v", panel.ErrRankDeficient, err)
	}

	res := &WLSResult{
		Coeffs:    make([]float64, p),
		Residuals: make([]float64, n),
	}
	for j := 0; j < p; j++ {
		res.Coeffs[j] = beta.AtVec(j)
	}
	for i := 0; i < n; i++ {
		fitted := 0.0
		for j := 0; j < p; j++ {
			fitted += x.At(i, j) * res.Coeffs[j]
		}
		res.Residuals[i] = y[i] - fitted
	}
	return res, nil
}

// ConstrainedResult holds the output of the sector-constrained fit.
type ConstrainedResult struct {
	// Market is the intercept (market) factor return.
	Market float64
	// Sector holds one return per sector column, satisfying
	// sum_k participation_k * Sector_k == 0 exactly.
	Sector []float64
	// Style holds one return per style column.
	Style []float64
	// Residuals are the per-asset idiosyncratic returns.
	Residuals []float64
}

// SolveConstrained fits the factor model
//
//	y_i = market + sum_k sector_ik * beta_k + sum_s style_is * gamma_s + eps_i
//
// under the Barra-style constraint sum_k s_k * beta_k = 0, where s_k is the
// aggregate weight of sector k across assets. The sector dummies sum
// row-wise to the market column, so the unconstrained system is rank
// deficient by exactly one degree of freedom; the constraint is imposed by
// eliminating the last sector column algebraically and back-substituting its
// coefficient, which makes the constraint hold to floating-point precision.
//
// Every sector column must have positive aggregate weight; degenerate dates
// fail with panel.ErrRankDeficient, either here or through the condition
// check of the reduced solve.
func SolveConstrained(y, w []float64, sectors, styles *mat.Dense, condLimit float64) (*ConstrainedResult, error) {
	n := len(y)
	if len(w) != n {
		return nil, fmt.Errorf("%w: weight length %d != %d assets", panel.ErrSchemaMismatch, len(w), n)
	}
	sn, k := sectors.Dims()
	if sn != n {
		return nil, fmt.Errorf("%w: sector matrix has %d rows for %d assets", panel.ErrSchemaMismatch, sn, n)
	}
	if k == 0 {
		return nil, fmt.Errorf("%w: at least one sector column required", panel.ErrSchemaMismatch)
	}
	styleCount := 0
	if styles != nil {
		stn, s := styles.Dims()
		if stn != n {
			return nil, fmt.Errorf("%w: style matrix has %d rows for %d assets", panel.ErrSchemaMismatch, stn, n)
		}
		styleCount = s
	}

	// Aggregate sector participation. Every sector column must carry
	// positive weight or the elimination divides by zero.
	participation := make([]float64, k)
	for j := 0; j < k; j++ {
		for i := 0; i < n; i++ {
			v := sectors.At(i, j)
			if v != 0 {
				participation[j] += w[i] * v
			}
		}
		if participation[j] <= 0 {
			return nil, fmt.Errorf("%w: sector column %d has non-positive aggregate weight", panel.ErrRankDeficient, j)
		}
	}

	// Reduced design: [market | sectors 0..k-2 reparametrized | styles].
	cols := 1 + (k - 1) + styleCount
	x := mat.NewDense(n, cols, nil)
	last := k - 1
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j := 0; j < k-1; j++ {
			adj := sectors.At(i, j) - participation[j]/participation[last]*sectors.At(i, last)
			x.Set(i, 1+j, adj)
		}
		for s := 0; s < styleCount; s++ {
			x.Set(i, 1+(k-1)+s, styles.At(i, s))
		}
	}

	fit, err := SolveWLS(x, y, w, condLimit)
	if err != nil {
		return nil, err
	}

	out := &ConstrainedResult{
		Market:    fit.Coeffs[0],
		Sector:    make([]float64, k),
		Style:     make([]float64, styleCount),
		Residuals: fit.Residuals,
	}
	for j := 0; j < k-1; j++ {
		out.Sector[j] = fit.Coeffs[1+j]
	}
	// Back-substitute the eliminated sector so the weighted sum is zero.
	acc := 0.0
	for j := 0; j < k-1; j++ {
		acc += participation[j] * out.Sector[j]
	}
	out.Sector[last] = -acc / participation[last]
	for s := 0; s < styleCount; s++ {
		out.Style[s] = fit.Coeffs[1+(k-1)+s]
	}
	return out, nil
}
