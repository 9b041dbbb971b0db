package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/factorlab/internal/modules/panel"
	"github.com/aristath/factorlab/internal/modules/xsection"
)

// DefaultMomentumConfig mirrors the common convention of a two-year window
// with a six-month half-life, skipping the most recent month to avoid
// short-term reversal.
var DefaultMomentumConfig = Config{
	TrailingDays: 504,
	HalfLife:     126,
	Lag:          20,
	WinsorFactor: 0.01,
}

// Momentum scores assets by exponentially weighted cumulative log return
// over a trailing window, excluding the most recent Lag periods. Scores are
// winsorized and cross-sectionally standardized.
type Momentum struct {
	cfg Config
}

// NewMomentum creates a momentum factor, validating the configuration.
func NewMomentum(cfg Config) (*Momentum, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("momentum: %w", err)
	}
	return &Momentum{cfg: cfg}, nil
}

// Name implements Factor.
func (m *Momentum) Name() string { return "mom_score" }

// Config returns the factor configuration.
func (m *Momentum) Config() Config { return m.cfg }

// Scores implements Factor. An asset needs at least TrailingDays/2 finite
// returns inside the window to receive a score; a date where fewer than 2
// assets qualify fails with panel.ErrInsufficientData.
func (m *Momentum) Scores(data *panel.Panel, date time.Time) (panel.CrossSection, error) {
	if !data.HasColumn(ColReturns) {
		return panel.CrossSection{}, fmt.Errorf("%w: momentum requires column %q", panel.ErrSchemaMismatch, ColReturns)
	}

	history := data.DatesUpTo(date)
	if len(history) <= m.cfg.Lag {
		return panel.CrossSection{}, fmt.Errorf("%w: %d dates of history, lag %d", panel.ErrInsufficientData, len(history), m.cfg.Lag)
	}
	window := history[:len(history)-m.cfg.Lag]
	if len(window) > m.cfg.TrailingDays {
		window = window[len(window)-m.cfg.TrailingDays:]
	}
	minObs := m.cfg.TrailingDays / 2
	if minObs < 1 {
		minObs = 1
	}
	if len(window) < minObs {
		return panel.CrossSection{}, fmt.Errorf("%w: window of %d dates, need %d", panel.ErrInsufficientData, len(window), minObs)
	}

	weights, err := xsection.ExpWeights(len(window), m.cfg.HalfLife)
	if err != nil {
		return panel.CrossSection{}, err
	}

	symbols := data.Symbols(date)
	scores := make([]float64, 0, len(symbols))
	scored := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		series, err := data.History(sym, ColReturns, window)
		if err != nil {
			return panel.CrossSection{}, err
		}
		sum, obs := 0.0, 0
		for i, r := range series {
			if math.IsNaN(r) || r <= -1 {
				continue
			}
			sum += weights[i] * math.Log1p(r)
			obs++
		}
		if obs < minObs {
			continue
		}
		scored = append(scored, sym)
		scores = append(scores, sum)
	}
	if len(scored) < 2 {
		return panel.CrossSection{}, fmt.Errorf("%w: %d assets with enough momentum history on %s", panel.ErrInsufficientData, len(scored), date.Format("2006-01-02"))
	}

	clipped, err := xsection.Winsorize(scores, m.cfg.WinsorFactor)
	if err != nil {
		return panel.CrossSection{}, err
	}
	standardized, err := xsection.Standardize(clipped, nil)
	if err != nil {
		return panel.CrossSection{}, err
	}
	return panel.CrossSection{Date: panel.Day(date), Symbols: scored, Values: standardized}, nil
}
