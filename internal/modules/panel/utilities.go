package panel

import (
	"fmt"
	"math"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"
)

// ForwardFill returns a copy of the panel where, for each symbol in date
// order, missing (NaN) values in the given columns carry the last finite
// value forward. Leading gaps remain NaN.
func ForwardFill(p *Panel, columns ...string) (*Panel, error) {
	out := p.Clone()
	for _, c := range columns {
		col, ok := out.data[c]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, c)
		}
		for _, rows := range out.rowsBySymbol() {
			last := math.NaN()
			for _, row := range rows {
				if math.IsNaN(col[row]) {
					col[row] = last
				} else {
					last = col[row]
				}
			}
		}
	}
	return out, nil
}

// Smooth returns a copy of the panel where each given column is replaced by
// its trailing simple moving average per symbol. Rows without a full window
// of history become NaN. NaN inputs propagate through the window.
func Smooth(p *Panel, window int, columns ...string) (*Panel, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: smoothing window must be >= 1, got %d", ErrInvalidConfig, window)
	}
	out := p.Clone()
	for _, c := range columns {
		col, ok := out.data[c]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, c)
		}
		for _, rows := range out.rowsBySymbol() {
			series := make([]float64, len(rows))
			for i, row := range rows {
				series[i] = col[row]
			}
			if len(series) < window {
				for _, row := range rows {
					col[row] = math.NaN()
				}
				continue
			}
			sma := talib.Sma(series, window)
			for i, row := range rows {
				if i < window-1 {
					col[row] = math.NaN()
					continue
				}
				col[row] = sma[i]
			}
		}
	}
	return out, nil
}

// TopN returns a new panel keeping, per date, the n rows with the largest
// values in rankColumn. NaN ranks always lose; ties break by symbol for
// deterministic output.
func TopN(p *Panel, n int, rankColumn string) (*Panel, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: top-n requires n >= 1, got %d", ErrInvalidConfig, n)
	}
	if !p.HasColumn(rankColumn) {
		return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, rankColumn)
	}

	out := New(p.columns...)
	for _, date := range p.Dates() {
		keep := p.topSymbols(date, n, rankColumn)
		for _, s := range keep {
			row := p.index[date][s]
			values := make(map[string]float64, len(p.columns))
			for _, c := range p.columns {
				values[c] = p.data[c][row]
			}
			if err := out.Append(date, s, values); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// TopNMask returns a copy of the panel with an added indicator column
// (1 for the per-date top n rows by rankColumn, 0 otherwise) instead of
// filtering rows out.
func TopNMask(p *Panel, n int, rankColumn, maskColumn string) (*Panel, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: top-n requires n >= 1, got %d", ErrInvalidConfig, n)
	}
	if !p.HasColumn(rankColumn) {
		return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, rankColumn)
	}

	out := p.Clone()
	out.columns = append(out.columns, maskColumn)
	mask := make([]float64, out.Len())
	out.data[maskColumn] = mask

	for _, date := range p.Dates() {
		for _, s := range p.topSymbols(date, n, rankColumn) {
			mask[p.index[date][s]] = 1
		}
	}
	return out, nil
}

func (p *Panel) topSymbols(date time.Time, n int, rankColumn string) []string {
	col := p.data[rankColumn]
	syms := p.Symbols(date)
	sort.SliceStable(syms, func(i, j int) bool {
		a := col[p.index[date][syms[i]]]
		b := col[p.index[date][syms[j]]]
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		default:
			return a > b
		}
	})
	if len(syms) > n {
		syms = syms[:n]
	}
	sort.Strings(syms)
	return syms
}
