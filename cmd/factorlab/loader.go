package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/panel"
)

// inputPanels holds the four estimator inputs built from one CSV file.
// features carries returns, caps and valuation ratios together so the factor
// registry can read whatever columns it needs.
type inputPanels struct {
	returns  *panel.Panel
	caps     *panel.Panel
	sectors  *panel.Panel
	features *panel.Panel
}

// loadCSVPanels reads a long-format CSV with header
// date,symbol,asset_returns,market_cap,sector[,book_price,sales_price,cf_price]
// and splits it into the estimator's input panels. The sector column is
// expanded into one-hot indicator columns named sector_<value>.
func loadCSVPanels(path string) (*inputPanels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, required := range []string{"date", "symbol", factors.ColReturns, factors.ColMarketCap, "sector"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: input missing column %q", panel.ErrSchemaMismatch, required)
		}
	}

	type record struct {
		date    time.Time
		symbol  string
		sector  string
		numeric map[string]float64
	}
	numericCols := []string{factors.ColReturns, factors.ColMarketCap, factors.ColBookPrice, factors.ColSalesPrice, factors.ColCashPrice}

	var records []record
	sectorSet := map[string]bool{}
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", panel.ErrSchemaMismatch, line, err)
		}
		date, err := time.Parse("2006-01-02", row[idx["date"]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad date %q", panel.ErrSchemaMismatch, line, row[idx["date"]])
		}
		rec := record{
			date:    panel.Day(date),
			symbol:  row[idx["symbol"]],
			sector:  row[idx["sector"]],
			numeric: make(map[string]float64),
		}
		for _, c := range numericCols {
			i, ok := idx[c]
			if !ok || row[i] == "" {
				continue
			}
			v, err := strconv.ParseFloat(row[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad value %q for %s", panel.ErrSchemaMismatch, line, row[i], c)
			}
			rec.numeric[c] = v
		}
		sectorSet[rec.sector] = true
		records = append(records, rec)
	}

	sectorNames := make([]string, 0, len(sectorSet))
	for name := range sectorSet {
		sectorNames = append(sectorNames, "sector_"+name)
	}
	sort.Strings(sectorNames)

	featureCols := []string{factors.ColReturns, factors.ColMarketCap}
	for _, c := range []string{factors.ColBookPrice, factors.ColSalesPrice, factors.ColCashPrice} {
		if _, ok := idx[c]; ok {
			featureCols = append(featureCols, c)
		}
	}

	out := &inputPanels{
		returns:  panel.New(factors.ColReturns),
		caps:     panel.New(factors.ColMarketCap),
		sectors:  panel.New(sectorNames...),
		features: panel.New(featureCols...),
	}
	for _, rec := range records {
		ret := map[string]float64{}
		if v, ok := rec.numeric[factors.ColReturns]; ok {
			ret[factors.ColReturns] = v
		}
		if err := out.returns.Append(rec.date, rec.symbol, ret); err != nil {
			return nil, err
		}
		mc := map[string]float64{}
		if v, ok := rec.numeric[factors.ColMarketCap]; ok {
			mc[factors.ColMarketCap] = v
		}
		if err := out.caps.Append(rec.date, rec.symbol, mc); err != nil {
			return nil, err
		}
		oneHot := make(map[string]float64, len(sectorNames))
		for _, name := range sectorNames {
			oneHot[name] = 0
		}
		oneHot["sector_"+rec.sector] = 1
		if err := out.sectors.Append(rec.date, rec.symbol, oneHot); err != nil {
			return nil, err
		}
		features := make(map[string]float64, len(featureCols))
		for _, c := range featureCols {
			if v, ok := rec.numeric[c]; ok {
				features[c] = v
			}
		}
		if err := out.features.Append(rec.date, rec.symbol, features); err != nil {
			return nil, err
		}
	}
	return out, nil
}
