// Package panel provides the in-memory columnar data model shared by the
// factor estimation pipeline. A Panel holds per-(date, symbol) observations
// with named float64 columns; missing values are NaN. Dates are normalized
// to UTC midnight so they are safe to use as map keys.
package panel

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Day normalizes a timestamp to UTC midnight. All panel dates pass through
// this so lookups by date are exact.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Panel is a columnar table of per-(date, symbol) observations.
// Rows are append-only; one row per (date, symbol) pair.
type Panel struct {
	columns []string
	dates   []time.Time
	symbols []string
	data    map[string][]float64

	// index maps date -> symbol -> row position.
	index map[time.Time]map[string]int
}

// New creates an empty panel with the given column names.
func New(columns ...string) *Panel {
	p := &Panel{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]float64, len(columns)),
		index:   make(map[time.Time]map[string]int),
	}
	for _, c := range columns {
		p.data[c] = nil
	}
	return p
}

// Append adds one (date, symbol) observation. Columns absent from values are
// stored as NaN; values for columns the panel does not have are rejected.
// A duplicate (date, symbol) pair is rejected.
func (p *Panel) Append(date time.Time, symbol string, values map[string]float64) error {
	date = Day(date)
	for c := range values {
		if _, ok := p.data[c]; !ok {
			return fmt.Errorf("%w: column %q not in panel", ErrSchemaMismatch, c)
		}
	}
	if bySym, ok := p.index[date]; ok {
		if _, dup := bySym[symbol]; dup {
			return fmt.Errorf("%w: duplicate observation for %s on %s", ErrSchemaMismatch, symbol, date.Format("2006-01-02"))
		}
	}

	row := len(p.dates)
	p.dates = append(p.dates, date)
	p.symbols = append(p.symbols, symbol)
	for _, c := range p.columns {
		v, ok := values[c]
		if !ok {
			v = math.NaN()
		}
		p.data[c] = append(p.data[c], v)
	}

	bySym := p.index[date]
	if bySym == nil {
		bySym = make(map[string]int)
		p.index[date] = bySym
	}
	bySym[symbol] = row
	return nil
}

// Set writes one value for (date, symbol, column), creating the row if it
// does not exist. Other columns of a created row start as NaN.
func (p *Panel) Set(date time.Time, symbol, column string, value float64) error {
	if _, ok := p.data[column]; !ok {
		return fmt.Errorf("%w: column %q not in panel", ErrSchemaMismatch, column)
	}
	date = Day(date)
	if bySym, ok := p.index[date]; ok {
		if row, ok := bySym[symbol]; ok {
			p.data[column][row] = value
			return nil
		}
	}
	return p.Append(date, symbol, map[string]float64{column: value})
}

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.dates) }

// Columns returns the column names in declaration order.
func (p *Panel) Columns() []string {
	return append([]string(nil), p.columns...)
}

// HasColumn reports whether the panel has the named column.
func (p *Panel) HasColumn(name string) bool {
	_, ok := p.data[name]
	return ok
}

// Dates returns the sorted unique dates present in the panel.
func (p *Panel) Dates() []time.Time {
	out := make([]time.Time, 0, len(p.index))
	for d := range p.index {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DatesUpTo returns the sorted dates at or before the given date (inclusive).
func (p *Panel) DatesUpTo(date time.Time) []time.Time {
	date = Day(date)
	all := p.Dates()
	n := sort.Search(len(all), func(i int) bool { return all[i].After(date) })
	return all[:n]
}

// Symbols returns the sorted symbols present on the given date.
func (p *Panel) Symbols(date time.Time) []string {
	bySym := p.index[Day(date)]
	out := make([]string, 0, len(bySym))
	for s := range bySym {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Value returns the stored value for (date, symbol, column). The second
// return is false when the row does not exist; a stored NaN returns true.
func (p *Panel) Value(date time.Time, symbol, column string) (float64, bool) {
	col, ok := p.data[column]
	if !ok {
		return math.NaN(), false
	}
	bySym, ok := p.index[Day(date)]
	if !ok {
		return math.NaN(), false
	}
	row, ok := bySym[symbol]
	if !ok {
		return math.NaN(), false
	}
	return col[row], true
}

// CrossSection holds one date's slice of a single column across symbols.
type CrossSection struct {
	Date    time.Time
	Symbols []string
	Values  []float64
}

// Len returns the number of assets in the cross-section.
func (c CrossSection) Len() int { return len(c.Symbols) }

// At extracts the cross-section of one column on one date, ordered by symbol.
// Rows whose value is NaN are included; callers filter as needed.
func (p *Panel) At(date time.Time, column string) (CrossSection, error) {
	date = Day(date)
	col, ok := p.data[column]
	if !ok {
		return CrossSection{}, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, column)
	}
	syms := p.Symbols(date)
	cs := CrossSection{Date: date, Symbols: syms, Values: make([]float64, len(syms))}
	bySym := p.index[date]
	for i, s := range syms {
		cs.Values[i] = col[bySym[s]]
	}
	return cs, nil
}

// History returns the values of one column for one symbol over the given
// dates, in order. Dates where the symbol is absent yield NaN.
func (p *Panel) History(symbol, column string, dates []time.Time) ([]float64, error) {
	col, ok := p.data[column]
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, column)
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = math.NaN()
		if bySym, ok := p.index[Day(d)]; ok {
			if row, ok := bySym[symbol]; ok {
				out[i] = col[row]
			}
		}
	}
	return out, nil
}

// Clone returns a deep copy of the panel.
func (p *Panel) Clone() *Panel {
	out := New(p.columns...)
	out.dates = append([]time.Time(nil), p.dates...)
	out.symbols = append([]string(nil), p.symbols...)
	for _, c := range p.columns {
		out.data[c] = append([]float64(nil), p.data[c]...)
	}
	for d, bySym := range p.index {
		m := make(map[string]int, len(bySym))
		for s, r := range bySym {
			m[s] = r
		}
		out.index[d] = m
	}
	return out
}

// rowsBySymbol groups row positions per symbol, each group sorted by date.
func (p *Panel) rowsBySymbol() map[string][]int {
	groups := make(map[string][]int)
	for row, s := range p.symbols {
		groups[s] = append(groups[s], row)
	}
	for _, rows := range groups {
		sort.Slice(rows, func(i, j int) bool { return p.dates[rows[i]].Before(p.dates[rows[j]]) })
	}
	return groups
}
