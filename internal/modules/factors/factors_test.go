package factors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorlab/internal/modules/panel"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tradingDays(start string, n int) []time.Time {
	out := make([]time.Time, n)
	d := day(start)
	for i := range out {
		out[i] = d
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{TrailingDays: 10, HalfLife: 5, Lag: 1, WinsorFactor: 0.05}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero trailing days", Config{TrailingDays: 0, HalfLife: 5}},
		{"zero half-life", Config{TrailingDays: 10, HalfLife: 0}},
		{"negative lag", Config{TrailingDays: 10, HalfLife: 5, Lag: -1}},
		{"winsor too large", Config{TrailingDays: 10, HalfLife: 5, WinsorFactor: 0.5}},
		{"winsor negative", Config{TrailingDays: 10, HalfLife: 5, WinsorFactor: -0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.cfg.Validate(), panel.ErrInvalidConfig)
		})
	}
}

func TestRegistry_GetUnknownFactor(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, panel.ErrUnknownFactor)
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	first := NewFunc("custom", func(*panel.Panel, time.Time) (panel.CrossSection, error) {
		return panel.CrossSection{}, nil
	})
	second := NewFunc("custom", func(*panel.Panel, time.Time) (panel.CrossSection, error) {
		return panel.CrossSection{}, nil
	})
	r.Register(first)
	r.Register(second)

	got, err := r.Get("custom")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, []string{"custom"}, r.Names())
}

func returnsPanel(dates []time.Time) *panel.Panel {
	p := panel.New(ColReturns)
	for _, d := range dates {
		_ = p.Append(d, "UP", map[string]float64{ColReturns: 0.01})
		_ = p.Append(d, "DOWN", map[string]float64{ColReturns: -0.01})
		_ = p.Append(d, "FLAT", map[string]float64{ColReturns: 0.0})
	}
	return p
}

func TestMomentum_RanksByTrailingReturn(t *testing.T) {
	dates := tradingDays("2024-01-01", 12)
	data := returnsPanel(dates)

	mom, err := NewMomentum(Config{TrailingDays: 8, HalfLife: 4, Lag: 2, WinsorFactor: 0})
	require.NoError(t, err)

	cs, err := mom.Scores(data, dates[len(dates)-1])
	require.NoError(t, err)
	require.Equal(t, 3, cs.Len())

	byName := map[string]float64{}
	for i, sym := range cs.Symbols {
		byName[sym] = cs.Values[i]
	}
	assert.Greater(t, byName["UP"], byName["FLAT"])
	assert.Greater(t, byName["FLAT"], byName["DOWN"])

	// Standardized: cross-sectional mean is zero.
	sum := 0.0
	for _, v := range cs.Values {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestMomentum_InsufficientHistory(t *testing.T) {
	dates := tradingDays("2024-01-01", 3)
	data := returnsPanel(dates)

	mom, err := NewMomentum(Config{TrailingDays: 8, HalfLife: 4, Lag: 2, WinsorFactor: 0})
	require.NoError(t, err)

	_, err = mom.Scores(data, dates[len(dates)-1])
	assert.ErrorIs(t, err, panel.ErrInsufficientData)
}

func TestMomentum_InvalidConfigRejected(t *testing.T) {
	_, err := NewMomentum(Config{TrailingDays: 0, HalfLife: 4})
	assert.ErrorIs(t, err, panel.ErrInvalidConfig)
}

func TestSize_SmallCapsScoreHigher(t *testing.T) {
	d := day("2024-03-01")
	data := panel.New(ColMarketCap)
	require.NoError(t, data.Append(d, "SMALL", map[string]float64{ColMarketCap: 1e8}))
	require.NoError(t, data.Append(d, "MID", map[string]float64{ColMarketCap: 1e10}))
	require.NoError(t, data.Append(d, "BIG", map[string]float64{ColMarketCap: 1e12}))

	size, err := NewSize(DefaultSizeConfig)
	require.NoError(t, err)

	cs, err := size.Scores(data, d)
	require.NoError(t, err)

	byName := map[string]float64{}
	for i, sym := range cs.Symbols {
		byName[sym] = cs.Values[i]
	}
	assert.Greater(t, byName["SMALL"], byName["MID"])
	assert.Greater(t, byName["MID"], byName["BIG"])
}

func TestSize_DropsNonPositiveCaps(t *testing.T) {
	d := day("2024-03-01")
	data := panel.New(ColMarketCap)
	require.NoError(t, data.Append(d, "OK1", map[string]float64{ColMarketCap: 1e9}))
	require.NoError(t, data.Append(d, "OK2", map[string]float64{ColMarketCap: 2e9}))
	require.NoError(t, data.Append(d, "BAD", map[string]float64{ColMarketCap: 0}))

	size, err := NewSize(DefaultSizeConfig)
	require.NoError(t, err)

	cs, err := size.Scores(data, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"OK1", "OK2"}, cs.Symbols)
}

func TestValue_CompositeOfRatios(t *testing.T) {
	d := day("2024-03-01")
	data := panel.New(ColBookPrice, ColSalesPrice, ColCashPrice)
	require.NoError(t, data.Append(d, "CHEAP", map[string]float64{ColBookPrice: 2.0, ColSalesPrice: 3.0, ColCashPrice: 0.5}))
	require.NoError(t, data.Append(d, "FAIR", map[string]float64{ColBookPrice: 1.0, ColSalesPrice: 1.5, ColCashPrice: 0.2}))
	require.NoError(t, data.Append(d, "RICH", map[string]float64{ColBookPrice: 0.2, ColSalesPrice: 0.5, ColCashPrice: 0.05}))

	value, err := NewValue(DefaultValueConfig)
	require.NoError(t, err)

	cs, err := value.Scores(data, d)
	require.NoError(t, err)

	byName := map[string]float64{}
	for i, sym := range cs.Symbols {
		byName[sym] = cs.Values[i]
	}
	assert.Greater(t, byName["CHEAP"], byName["FAIR"])
	assert.Greater(t, byName["FAIR"], byName["RICH"])
}

func TestValue_MissingAllRatios(t *testing.T) {
	d := day("2024-03-01")
	data := panel.New(ColReturns)
	require.NoError(t, data.Append(d, "AAA", map[string]float64{ColReturns: 0.01}))

	value, err := NewValue(DefaultValueConfig)
	require.NoError(t, err)

	_, err = value.Scores(data, d)
	assert.ErrorIs(t, err, panel.ErrSchemaMismatch)
}

func TestRegistry_PanelAssemblesColumns(t *testing.T) {
	dates := tradingDays("2024-01-01", 12)
	data := panel.New(ColReturns, ColMarketCap)
	caps := map[string]float64{"UP": 1e9, "DOWN": 5e9, "FLAT": 2e10}
	rets := map[string]float64{"UP": 0.01, "DOWN": -0.01, "FLAT": 0.0}
	for _, d := range dates {
		for sym := range caps {
			require.NoError(t, data.Append(d, sym, map[string]float64{
				ColReturns:   rets[sym],
				ColMarketCap: caps[sym],
			}))
		}
	}

	r := NewRegistry()
	mom, err := NewMomentum(Config{TrailingDays: 8, HalfLife: 4, Lag: 2, WinsorFactor: 0})
	require.NoError(t, err)
	size, err := NewSize(DefaultSizeConfig)
	require.NoError(t, err)
	r.Register(mom)
	r.Register(size)

	styles, err := r.Panel(data, dates)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"mom_score", "sze_score"}, styles.Columns())

	// Size scores exist from the first date; momentum only once history allows.
	v, ok := styles.Value(dates[0], "UP", "sze_score")
	require.True(t, ok)
	assert.False(t, math.IsNaN(v))
	last := dates[len(dates)-1]
	v, ok = styles.Value(last, "UP", "mom_score")
	require.True(t, ok)
	assert.False(t, math.IsNaN(v))
}
