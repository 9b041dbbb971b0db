// Package factors defines the style-factor capability interface, the
// configured implementations (momentum, size, value) and the registry that
// maps factor names to instances for the estimation pipeline.
package factors

import (
	"fmt"
	"time"

	"github.com/aristath/factorlab/internal/modules/panel"
)

// Column names the built-in factors read from input panels.
const (
	ColReturns    = "asset_returns"
	ColMarketCap  = "market_cap"
	ColBookPrice  = "book_price"
	ColSalesPrice = "sales_price"
	ColCashPrice  = "cf_price"
)

// Factor computes a cross-sectional score for one date from a historical
// slice of panel data. Implementations must be safe for concurrent use.
type Factor interface {
	// Name is the score column name this factor produces.
	Name() string

	// Scores computes the per-asset scores for the target date. The panel
	// holds all history up to and including the date; implementations decide
	// how much of it they need. Returns panel.ErrInsufficientData when the
	// available history cannot support the computation for this date.
	Scores(data *panel.Panel, date time.Time) (panel.CrossSection, error)
}

// Config holds the per-factor scoring parameters.
type Config struct {
	// TrailingDays is the lookback window length in trading days.
	TrailingDays int
	// HalfLife is the exponential decay half-life in trading days.
	HalfLife float64
	// Lag is the number of most recent periods to skip.
	Lag int
	// WinsorFactor is the symmetric winsorization fraction in [0, 0.5).
	WinsorFactor float64
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.TrailingDays <= 0 {
		return fmt.Errorf("%w: trailing days must be > 0, got %d", panel.ErrInvalidConfig, c.TrailingDays)
	}
	if c.HalfLife <= 0 {
		return fmt.Errorf("%w: half-life must be > 0, got %v", panel.ErrInvalidConfig, c.HalfLife)
	}
	if c.Lag < 0 {
		return fmt.Errorf("%w: lag must be >= 0, got %d", panel.ErrInvalidConfig, c.Lag)
	}
	if c.WinsorFactor < 0 || c.WinsorFactor >= 0.5 {
		return fmt.Errorf("%w: winsorization fraction %v outside [0, 0.5)", panel.ErrInvalidConfig, c.WinsorFactor)
	}
	return nil
}

// Func adapts a plain function into a Factor, for custom factors that do not
// need their own type.
type Func struct {
	name string
	fn   func(data *panel.Panel, date time.Time) (panel.CrossSection, error)
}

// NewFunc wraps fn as a named Factor.
func NewFunc(name string, fn func(data *panel.Panel, date time.Time) (panel.CrossSection, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Factor.
func (f *Func) Name() string { return f.name }

// Scores implements Factor.
func (f *Func) Scores(data *panel.Panel, date time.Time) (panel.CrossSection, error) {
	return f.fn(data, date)
}
