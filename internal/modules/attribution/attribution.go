// Package attribution decomposes an individual asset's realized return over
// a date range into factor contributions (exposure times factor return) plus
// the idiosyncratic remainder, consuming the estimator's output.
package attribution

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/factorlab/internal/modules/estimator"
	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/panel"
)

// Contribution is one factor's share of an asset's return over the period.
type Contribution struct {
	// Factor is the factor (sector or style) column name.
	Factor string
	// Exposure is the average exposure over the dates the asset was present.
	Exposure float64
	// Return is the cumulative factor return over those dates.
	Return float64
	// Contribution is the summed per-date exposure * factor return.
	Contribution float64
}

// Report is the attribution of one asset over a date range.
type Report struct {
	Symbol      string
	Start, End  time.Time
	Dates       int
	TotalReturn float64
	// Market is the cumulative market contribution (exposure is always 1).
	Market float64
	// Sectors and Styles are sorted by factor name.
	Sectors []Contribution
	Styles  []Contribution
	// Idiosyncratic is the summed reported residual.
	Idiosyncratic float64
}

// Explained returns the part of the total return attributed to factors.
func (r *Report) Explained() float64 {
	out := r.Market
	for _, c := range r.Sectors {
		out += c.Contribution
	}
	for _, c := range r.Styles {
		out += c.Contribution
	}
	return out
}

// Explain attributes symbol's return between start and end (inclusive) using
// an estimation result and the exposure panels that produced it. Only dates
// where the symbol entered the fit contribute. Note that when styles were
// residualized against sectors during estimation, the style exposures here
// are the raw scores, so the decomposition is approximate for styles.
func Explain(result *estimator.Result, returns, sectors, styles *panel.Panel, symbol string, start, end time.Time) (*Report, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: estimation result is required", panel.ErrSchemaMismatch)
	}
	start, end = panel.Day(start), panel.Day(end)

	report := &Report{Symbol: symbol, Start: start, End: end}
	sectorAcc := make(map[string]*Contribution)
	styleAcc := make(map[string]*Contribution)

	for _, row := range result.Factors {
		if row.Date.Before(start) || row.Date.After(end) {
			continue
		}
		resid, ok := result.Residual(row.Date, symbol)
		if !ok {
			continue
		}
		ret, ok := returns.Value(row.Date, symbol, factors.ColReturns)
		if !ok || math.IsNaN(ret) {
			continue
		}

		report.Dates++
		report.TotalReturn += ret
		report.Market += row.Market
		report.Idiosyncratic += resid

		for name, fr := range row.Sectors {
			exp, ok := sectors.Value(row.Date, symbol, name)
			if !ok || math.IsNaN(exp) {
				exp = 0
			}
			acc := accumulator(sectorAcc, name)
			acc.Exposure += exp
			acc.Return += fr
			acc.Contribution += exp * fr
		}
		if styles != nil {
			for name, fr := range row.Styles {
				exp, ok := styles.Value(row.Date, symbol, name)
				if !ok || math.IsNaN(exp) {
					exp = 0
				}
				acc := accumulator(styleAcc, name)
				acc.Exposure += exp
				acc.Return += fr
				acc.Contribution += exp * fr
			}
		}
	}
	if report.Dates == 0 {
		return nil, fmt.Errorf("%w: no estimated dates for %s in [%s, %s]", panel.ErrInsufficientData, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	report.Sectors = flatten(sectorAcc, report.Dates)
	report.Styles = flatten(styleAcc, report.Dates)
	return report, nil
}

func accumulator(m map[string]*Contribution, name string) *Contribution {
	if c, ok := m[name]; ok {
		return c
	}
	c := &Contribution{Factor: name}
	m[name] = c
	return c
}

func flatten(m map[string]*Contribution, dates int) []Contribution {
	out := make([]Contribution, 0, len(m))
	for _, c := range m {
		c.Exposure /= float64(dates)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Factor < out[j].Factor })
	return out
}
