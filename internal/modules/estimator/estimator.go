// Package estimator orchestrates per-date assembly of the factor design
// matrix from the input panels, runs the sector-constrained WLS solve, and
// assembles the factor-return and residual time series.
//
// Per-date estimation is embarrassingly parallel: each date owns its slice
// of the input panels exclusively. Results are written into a pre-sized
// slice by date index, so the output ordering is a guarantee of the API, not
// an accident of scheduling.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/linalg"
	"github.com/aristath/factorlab/internal/modules/panel"
	"github.com/aristath/factorlab/internal/modules/xsection"
)

// Config holds the estimator configuration.
type Config struct {
	// WinsorFactor, when non-nil, winsorizes each date's return vector at
	// this symmetric fraction before fitting. Must be in [0, 0.5).
	WinsorFactor *float64

	// ResidualizeStyles orthogonalizes style scores against the sector
	// dummies (weighted projection) before they enter the design matrix,
	// preventing sector co-movement from being double-counted as style.
	ResidualizeStyles bool

	// ConditionLimit bounds the acceptable condition number of the weighted
	// design. Zero selects linalg.DefaultConditionLimit.
	ConditionLimit float64

	// Parallelism bounds the per-date worker count. Zero selects GOMAXPROCS.
	Parallelism int
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.WinsorFactor != nil && (*c.WinsorFactor < 0 || *c.WinsorFactor >= 0.5) {
		return fmt.Errorf("%w: winsorization fraction %v outside [0, 0.5)", panel.ErrInvalidConfig, *c.WinsorFactor)
	}
	if c.ConditionLimit < 0 {
		return fmt.Errorf("%w: condition limit must be >= 0, got %v", panel.ErrInvalidConfig, c.ConditionLimit)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must be >= 0, got %d", panel.ErrInvalidConfig, c.Parallelism)
	}
	return nil
}

// FactorRow is one date's estimated factor returns.
type FactorRow struct {
	Date    time.Time
	Market  float64
	Sectors map[string]float64
	Styles  map[string]float64
}

// ResidualSlice is one date's idiosyncratic returns, aligned with Symbols.
type ResidualSlice struct {
	Date    time.Time
	Symbols []string
	Values  []float64
}

// SkippedDate records a date excluded from the output and why.
type SkippedDate struct {
	Date   time.Time
	Reason error
}

// Result is the output of a full estimation run. Factors and Residuals are
// ordered by date and contain only successfully estimated dates.
type Result struct {
	RunID     string
	Factors   []FactorRow
	Residuals []ResidualSlice
	Skipped   []SkippedDate
}

// Factor looks up one factor return by date and name ("market", a sector
// column name, or a style column name).
func (r *Result) Factor(date time.Time, name string) (float64, bool) {
	date = panel.Day(date)
	i := sort.Search(len(r.Factors), func(i int) bool { return !r.Factors[i].Date.Before(date) })
	if i >= len(r.Factors) || !r.Factors[i].Date.Equal(date) {
		return 0, false
	}
	row := r.Factors[i]
	if name == "market" {
		return row.Market, true
	}
	if v, ok := row.Sectors[name]; ok {
		return v, true
	}
	if v, ok := row.Styles[name]; ok {
		return v, true
	}
	return 0, false
}

// Residual looks up one idiosyncratic return by date and symbol.
func (r *Result) Residual(date time.Time, symbol string) (float64, bool) {
	date = panel.Day(date)
	i := sort.Search(len(r.Residuals), func(i int) bool { return !r.Residuals[i].Date.Before(date) })
	if i >= len(r.Residuals) || !r.Residuals[i].Date.Equal(date) {
		return 0, false
	}
	slice := r.Residuals[i]
	for j, s := range slice.Symbols {
		if s == symbol {
			return slice.Values[j], true
		}
	}
	return 0, false
}

// Estimator runs constrained WLS factor-return estimation over a panel of
// dates. Safe for concurrent use.
type Estimator struct {
	cfg Config
	log zerolog.Logger
}

// New creates an estimator, validating the configuration.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg, log: log.With().Str("component", "estimator").Logger()}, nil
}

// Estimate runs the per-date estimation over every date present in the
// returns panel. Dates that fail with a recoverable error (rank deficiency,
// insufficient data) are recorded in Result.Skipped and omitted from the
// output; schema and configuration errors abort the run.
//
// The styles panel may be nil when the model has no style factors.
func (e *Estimator) Estimate(ctx context.Context, returns, caps, sectors, styles *panel.Panel) (*Result, error) {
	if returns == nil || caps == nil || sectors == nil {
		return nil, fmt.Errorf("%w: returns, market cap and sector panels are required", panel.ErrSchemaMismatch)
	}
	dates := returns.Dates()

	type dateResult struct {
		ok   bool
		row  FactorRow
		res  ResidualSlice
		skip SkippedDate
	}
	results := make([]dateResult, len(dates))

	par := e.cfg.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			row, res, err := e.EstimateOne(date, returns, caps, sectors, styles)
			if err != nil {
				if recoverable(err) {
					e.log.Warn().Time("date", date).Err(err).Msg("skipping date")
					results[i] = dateResult{skip: SkippedDate{Date: date, Reason: err}}
					return nil
				}
				return fmt.Errorf("estimating %s: %w", date.Format("2006-01-02"), err)
			}
			results[i] = dateResult{ok: true, row: row, res: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{RunID: uuid.NewString()}
	for _, r := range results {
		if r.ok {
			out.Factors = append(out.Factors, r.row)
			out.Residuals = append(out.Residuals, r.res)
		} else {
			out.Skipped = append(out.Skipped, r.skip)
		}
	}
	e.log.Info().
		Str("run_id", out.RunID).
		Int("dates", len(dates)).
		Int("estimated", len(out.Factors)).
		Int("skipped", len(out.Skipped)).
		Msg("estimation run complete")
	return out, nil
}

// recoverable reports whether a per-date failure should skip the date
// rather than abort the run.
func recoverable(err error) bool {
	return errors.Is(err, panel.ErrRankDeficient) || errors.Is(err, panel.ErrInsufficientData)
}

// EstimateOne estimates factor returns for a single date.
func (e *Estimator) EstimateOne(date time.Time, returns, caps, sectors, styles *panel.Panel) (FactorRow, ResidualSlice, error) {
	date = panel.Day(date)

	symbols, err := e.universe(date, returns, caps, sectors, styles)
	if err != nil {
		return FactorRow{}, ResidualSlice{}, err
	}
	n := len(symbols)

	y := make([]float64, n)
	w := make([]float64, n)
	for i, sym := range symbols {
		r, _ := returns.Value(date, sym, factors.ColReturns)
		c, _ := caps.Value(date, sym, factors.ColMarketCap)
		if c <= 0 {
			return FactorRow{}, ResidualSlice{}, fmt.Errorf("%w: non-positive market cap for %s on %s", panel.ErrSchemaMismatch, sym, date.Format("2006-01-02"))
		}
		y[i] = r
		w[i] = c
	}
	normalize(w)

	sectorCols, sectorMat, err := e.sectorMatrix(date, symbols, sectors)
	if err != nil {
		return FactorRow{}, ResidualSlice{}, err
	}

	styleCols, styleMat, err := e.styleMatrix(date, symbols, styles, w, sectorMat)
	if err != nil {
		return FactorRow{}, ResidualSlice{}, err
	}

	if e.cfg.WinsorFactor != nil {
		y, err = xsection.Winsorize(y, *e.cfg.WinsorFactor)
		if err != nil {
			return FactorRow{}, ResidualSlice{}, err
		}
	}

	fit, err := linalg.SolveConstrained(y, w, sectorMat, styleMat, e.cfg.ConditionLimit)
	if err != nil {
		return FactorRow{}, ResidualSlice{}, err
	}

	row := FactorRow{
		Date:    date,
		Market:  fit.Market,
		Sectors: make(map[string]float64, len(sectorCols)),
		Styles:  make(map[string]float64, len(styleCols)),
	}
	for j, name := range sectorCols {
		row.Sectors[name] = fit.Sector[j]
	}
	for j, name := range styleCols {
		row.Styles[name] = fit.Style[j]
	}
	res := ResidualSlice{Date: date, Symbols: symbols, Values: fit.Residuals}
	return row, res, nil
}

// universe intersects the symbols available in every input panel on the
// date, keeping only rows with finite returns, caps and style scores.
func (e *Estimator) universe(date time.Time, returns, caps, sectors, styles *panel.Panel) ([]string, error) {
	if !returns.HasColumn(factors.ColReturns) {
		return nil, fmt.Errorf("%w: returns panel missing column %q", panel.ErrSchemaMismatch, factors.ColReturns)
	}
	if !caps.HasColumn(factors.ColMarketCap) {
		return nil, fmt.Errorf("%w: market cap panel missing column %q", panel.ErrSchemaMismatch, factors.ColMarketCap)
	}
	sectorCols := sectors.Columns()
	if len(sectorCols) == 0 {
		return nil, fmt.Errorf("%w: sector panel has no columns", panel.ErrSchemaMismatch)
	}

	var styleCols []string
	if styles != nil {
		styleCols = styles.Columns()
	}

	var symbols []string
	for _, sym := range returns.Symbols(date) {
		r, ok := returns.Value(date, sym, factors.ColReturns)
		if !ok || math.IsNaN(r) {
			continue
		}
		c, ok := caps.Value(date, sym, factors.ColMarketCap)
		if !ok || math.IsNaN(c) {
			continue
		}
		if _, ok := sectors.Value(date, sym, sectorCols[0]); !ok {
			continue
		}
		complete := true
		for _, sc := range styleCols {
			v, ok := styles.Value(date, sym, sc)
			if !ok || math.IsNaN(v) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty cross-section on %s", panel.ErrInsufficientData, date.Format("2006-01-02"))
	}
	return symbols, nil
}

// sectorMatrix builds the one-hot sector matrix restricted to the sectors
// present on the date, validating the exactly-one-sector invariant.
func (e *Estimator) sectorMatrix(date time.Time, symbols []string, sectors *panel.Panel) ([]string, *mat.Dense, error) {
	allCols := sectors.Columns()
	if len(allCols) == 0 {
		return nil, nil, fmt.Errorf("%w: sector panel has no columns", panel.ErrSchemaMismatch)
	}

	raw := make([][]float64, len(symbols))
	for i, sym := range symbols {
		raw[i] = make([]float64, len(allCols))
		hits := 0
		for j, c := range allCols {
			v, ok := sectors.Value(date, sym, c)
			if !ok || math.IsNaN(v) {
				v = 0
			}
			if v != 0 && v != 1 {
				return nil, nil, fmt.Errorf("%w: sector indicator %v for %s is not 0/1", panel.ErrSchemaMismatch, v, sym)
			}
			raw[i][j] = v
			if v == 1 {
				hits++
			}
		}
		if hits != 1 {
			return nil, nil, fmt.Errorf("%w: %s is in %d sectors on %s", panel.ErrSchemaMismatch, sym, hits, date.Format("2006-01-02"))
		}
	}

	// Drop sectors with no members on this date.
	var present []int
	var names []string
	for j, c := range allCols {
		for i := range symbols {
			if raw[i][j] == 1 {
				present = append(present, j)
				names = append(names, c)
				break
			}
		}
	}

	dense := mat.NewDense(len(symbols), len(present), nil)
	for i := range symbols {
		for jj, j := range present {
			dense.Set(i, jj, raw[i][j])
		}
	}
	return names, dense, nil
}

// styleMatrix builds the style-score matrix, optionally residualizing each
// style column against the sector dummies. One-hot dummies are mutually
// orthogonal, so the weighted projection reduces to subtracting each
// sector's weighted mean score.
func (e *Estimator) styleMatrix(date time.Time, symbols []string, styles *panel.Panel, w []float64, sectorMat *mat.Dense) ([]string, *mat.Dense, error) {
	// gonum rejects zero-width matrices; a nil Dense means no style block.
	if styles == nil || len(styles.Columns()) == 0 {
		return nil, nil, nil
	}
	cols := styles.Columns()
	dense := mat.NewDense(len(symbols), len(cols), nil)
	for i, sym := range symbols {
		for j, c := range cols {
			v, _ := styles.Value(date, sym, c)
			dense.Set(i, j, v)
		}
	}
	if !e.cfg.ResidualizeStyles {
		return cols, dense, nil
	}

	n, k := sectorMat.Dims()
	for j := range cols {
		for s := 0; s < k; s++ {
			num, den := 0.0, 0.0
			for i := 0; i < n; i++ {
				if sectorMat.At(i, s) == 1 {
					num += w[i] * dense.At(i, j)
					den += w[i]
				}
			}
			if den == 0 {
				continue
			}
			mean := num / den
			for i := 0; i < n; i++ {
				if sectorMat.At(i, s) == 1 {
					dense.Set(i, j, dense.At(i, j)-mean)
				}
			}
		}
	}
	return cols, dense, nil
}

func normalize(w []float64) {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}
