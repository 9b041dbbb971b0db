package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorlab/internal/modules/estimator"
	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/panel"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type obs struct {
	ret    float64
	cap    float64
	sector string
	style  float64
}

func buildPanels(t *testing.T, data map[string]map[string]obs) (returns, caps, sectors, styles *panel.Panel) {
	t.Helper()
	returns = panel.New(factors.ColReturns)
	caps = panel.New(factors.ColMarketCap)
	sectors = panel.New("sector_tech", "sector_util")
	styles = panel.New("style_score")
	for date, bySym := range data {
		for sym, o := range bySym {
			require.NoError(t, returns.Append(day(date), sym, map[string]float64{factors.ColReturns: o.ret}))
			require.NoError(t, caps.Append(day(date), sym, map[string]float64{factors.ColMarketCap: o.cap}))
			oneHot := map[string]float64{"sector_tech": 0, "sector_util": 0}
			oneHot["sector_"+o.sector] = 1
			require.NoError(t, sectors.Append(day(date), sym, oneHot))
			require.NoError(t, styles.Append(day(date), sym, map[string]float64{"style_score": o.style}))
		}
	}
	return returns, caps, sectors, styles
}

func estimate(t *testing.T, data map[string]map[string]obs) (*estimator.Result, *panel.Panel, *panel.Panel, *panel.Panel) {
	t.Helper()
	returns, caps, sectors, styles := buildPanels(t, data)
	est, err := estimator.New(estimator.Config{})
	require.NoError(t, err)
	result, err := est.Estimate(context.Background(), returns, caps, sectors, styles)
	require.NoError(t, err)
	return result, returns, sectors, styles
}

func TestExplain_DecompositionSumsToTotal(t *testing.T) {
	bySym := func(shift float64) map[string]obs {
		return map[string]obs{
			"AST1": {ret: 0.011 + shift, cap: 300, sector: "tech", style: 0.5},
			"AST2": {ret: 0.024 - shift, cap: 200, sector: "tech", style: 0.3},
			"AST3": {ret: 0.013 + shift, cap: 150, sector: "util", style: -0.2},
			"AST4": {ret: -0.008, cap: 120, sector: "util", style: -0.3},
			"AST5": {ret: 0.019 - shift, cap: 80, sector: "tech", style: 0.1},
			"AST6": {ret: 0.002, cap: 60, sector: "util", style: -0.4},
		}
	}
	result, returns, sectors, styles := estimate(t, map[string]map[string]obs{
		"2024-04-01": bySym(0),
		"2024-04-02": bySym(0.004),
		"2024-04-03": bySym(-0.002),
	})
	require.Len(t, result.Factors, 3)

	for _, sym := range []string{"AST1", "AST4", "AST6"} {
		report, err := Explain(result, returns, sectors, styles, sym, day("2024-04-01"), day("2024-04-03"))
		require.NoError(t, err)

		assert.Equal(t, 3, report.Dates)
		// Exact additive identity: styles enter the fit unresidualized here.
		assert.InDelta(t, report.TotalReturn, report.Explained()+report.Idiosyncratic, 1e-9, "symbol %s", sym)
	}
}

func TestExplain_SectorExposureSelectsOwnSector(t *testing.T) {
	result, returns, sectors, styles := estimate(t, map[string]map[string]obs{
		"2024-04-01": {
			"AST1": {ret: 0.02, cap: 100, sector: "tech", style: 0.5},
			"AST2": {ret: 0.01, cap: 100, sector: "tech", style: -0.1},
			"AST3": {ret: -0.01, cap: 100, sector: "util", style: -0.4},
		},
	})

	report, err := Explain(result, returns, sectors, styles, "AST3", day("2024-04-01"), day("2024-04-01"))
	require.NoError(t, err)

	require.Len(t, report.Sectors, 2)
	for _, c := range report.Sectors {
		switch c.Factor {
		case "sector_util":
			assert.InDelta(t, 1, c.Exposure, 1e-12)
			assert.InDelta(t, c.Return, c.Contribution, 1e-12)
		case "sector_tech":
			assert.InDelta(t, 0, c.Exposure, 1e-12)
			assert.InDelta(t, 0, c.Contribution, 1e-12)
		default:
			t.Fatalf("unexpected sector %q", c.Factor)
		}
	}
}

func TestExplain_DateRangeFilters(t *testing.T) {
	bySym := map[string]obs{
		"AST1": {ret: 0.02, cap: 100, sector: "tech", style: 0.5},
		"AST2": {ret: 0.01, cap: 100, sector: "tech", style: -0.1},
		"AST3": {ret: -0.01, cap: 100, sector: "util", style: -0.4},
	}
	result, returns, sectors, styles := estimate(t, map[string]map[string]obs{
		"2024-04-01": bySym,
		"2024-04-02": bySym,
		"2024-04-03": bySym,
	})

	report, err := Explain(result, returns, sectors, styles, "AST1", day("2024-04-02"), day("2024-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dates)
	assert.InDelta(t, 0.02, report.TotalReturn, 1e-12)
}

func TestExplain_NoDatesInRange(t *testing.T) {
	result, returns, sectors, styles := estimate(t, map[string]map[string]obs{
		"2024-04-01": {
			"AST1": {ret: 0.02, cap: 100, sector: "tech", style: 0.5},
			"AST2": {ret: 0.01, cap: 100, sector: "tech", style: -0.1},
			"AST3": {ret: -0.01, cap: 100, sector: "util", style: -0.4},
		},
	})

	_, err := Explain(result, returns, sectors, styles, "AST1", day("2024-05-01"), day("2024-05-31"))
	assert.ErrorIs(t, err, panel.ErrInsufficientData)

	_, err = Explain(result, returns, sectors, styles, "UNKNOWN", day("2024-04-01"), day("2024-04-01"))
	assert.ErrorIs(t, err, panel.ErrInsufficientData)
}

func TestExplain_NilResult(t *testing.T) {
	_, err := Explain(nil, nil, nil, nil, "AST1", day("2024-04-01"), day("2024-04-01"))
	assert.ErrorIs(t, err, panel.ErrSchemaMismatch)
}
