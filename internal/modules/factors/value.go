package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/factorlab/internal/modules/panel"
	"github.com/aristath/factorlab/internal/modules/xsection"
)

// DefaultValueConfig applies a light winsorization to each valuation ratio.
var DefaultValueConfig = Config{
	TrailingDays: 1,
	HalfLife:     1,
	Lag:          0,
	WinsorFactor: 0.01,
}

// valueColumns are the valuation ratios combined into the composite score.
var valueColumns = []string{ColBookPrice, ColSalesPrice, ColCashPrice}

// Value scores assets by an equal-weight composite of standardized
// valuation ratios: book-to-price, sales-to-price and cash-flow-to-price.
// Each ratio is winsorized and standardized before combination; assets
// missing every ratio are dropped.
type Value struct {
	cfg Config
}

// NewValue creates a value factor, validating the configuration.
func NewValue(cfg Config) (*Value, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return &Value{cfg: cfg}, nil
}

// Name implements Factor.
func (v *Value) Name() string { return "val_score" }

// Config returns the factor configuration.
func (v *Value) Config() Config { return v.cfg }

// Scores implements Factor.
func (v *Value) Scores(data *panel.Panel, date time.Time) (panel.CrossSection, error) {
	available := make([]string, 0, len(valueColumns))
	for _, c := range valueColumns {
		if data.HasColumn(c) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return panel.CrossSection{}, fmt.Errorf("%w: value requires at least one of %v", panel.ErrSchemaMismatch, valueColumns)
	}

	symbols := data.Symbols(date)
	if len(symbols) < 2 {
		return panel.CrossSection{}, fmt.Errorf("%w: %d assets on %s", panel.ErrInsufficientData, len(symbols), panel.Day(date).Format("2006-01-02"))
	}

	// Standardize each ratio independently, then average per asset.
	sums := make([]float64, len(symbols))
	counts := make([]int, len(symbols))
	for _, c := range available {
		cs, err := data.At(date, c)
		if err != nil {
			return panel.CrossSection{}, err
		}
		clipped, err := xsection.Winsorize(cs.Values, v.cfg.WinsorFactor)
		if err != nil {
			return panel.CrossSection{}, err
		}
		z, err := xsection.Standardize(clipped, nil)
		if err != nil {
			continue // too few finite values in this ratio today
		}
		for i, zv := range z {
			if math.IsNaN(zv) {
				continue
			}
			sums[i] += zv
			counts[i]++
		}
	}

	scored := make([]string, 0, len(symbols))
	scores := make([]float64, 0, len(symbols))
	for i, sym := range symbols {
		if counts[i] == 0 {
			continue
		}
		scored = append(scored, sym)
		scores = append(scores, sums[i]/float64(counts[i]))
	}
	if len(scored) < 2 {
		return panel.CrossSection{}, fmt.Errorf("%w: %d assets with valuation data on %s", panel.ErrInsufficientData, len(scored), panel.Day(date).Format("2006-01-02"))
	}
	return panel.CrossSection{Date: panel.Day(date), Symbols: scored, Values: scores}, nil
}
