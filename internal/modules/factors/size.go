package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/factorlab/internal/modules/panel"
	"github.com/aristath/factorlab/internal/modules/xsection"
)

// DefaultSizeConfig keeps the window parameters inert (size needs no
// history) and applies a light winsorization.
var DefaultSizeConfig = Config{
	TrailingDays: 1,
	HalfLife:     1,
	Lag:          0,
	WinsorFactor: 0.01,
}

// Size scores assets by negated log market capitalization, so smaller caps
// score higher (the small-minus-big convention). Scores are winsorized and
// cross-sectionally standardized.
type Size struct {
	cfg Config
}

// NewSize creates a size factor, validating the configuration.
func NewSize(cfg Config) (*Size, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	return &Size{cfg: cfg}, nil
}

// Name implements Factor.
func (s *Size) Name() string { return "sze_score" }

// Config returns the factor configuration.
func (s *Size) Config() Config { return s.cfg }

// Scores implements Factor.
func (s *Size) Scores(data *panel.Panel, date time.Time) (panel.CrossSection, error) {
	if !data.HasColumn(ColMarketCap) {
		return panel.CrossSection{}, fmt.Errorf("%w: size requires column %q", panel.ErrSchemaMismatch, ColMarketCap)
	}
	cs, err := data.At(date, ColMarketCap)
	if err != nil {
		return panel.CrossSection{}, err
	}

	symbols := make([]string, 0, cs.Len())
	raw := make([]float64, 0, cs.Len())
	for i, mc := range cs.Values {
		if math.IsNaN(mc) || mc <= 0 {
			continue
		}
		symbols = append(symbols, cs.Symbols[i])
		raw = append(raw, -math.Log(mc))
	}
	if len(symbols) < 2 {
		return panel.CrossSection{}, fmt.Errorf("%w: %d assets with positive market cap on %s", panel.ErrInsufficientData, len(symbols), panel.Day(date).Format("2006-01-02"))
	}

	clipped, err := xsection.Winsorize(raw, s.cfg.WinsorFactor)
	if err != nil {
		return panel.CrossSection{}, err
	}
	standardized, err := xsection.Standardize(clipped, nil)
	if err != nil {
		return panel.CrossSection{}, err
	}
	return panel.CrossSection{Date: panel.Day(date), Symbols: symbols, Values: standardized}, nil
}
