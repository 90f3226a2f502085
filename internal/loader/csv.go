// Package loader reads market-data and trade CSV files into memory.
// Loads fail fast: any malformed row aborts before a run starts, so the
// engine never sees a partially loaded product.
package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"backtest_go/internal/domain"
)

// LoadPrices reads a price CSV keyed by timestamp. Expected columns:
// timestamp, bid_price_1..3, bid_volume_1..3, ask_price_1..3,
// ask_volume_1..3. A blank price cell marks an absent level.
func LoadPrices(path string) (map[int64]domain.PriceRow, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	rows := make(map[int64]domain.PriceRow, len(records))
	for i, rec := range records {
		line := i + 2 // 1-based, after the header
		ts, err := fieldInt(rec, header, "timestamp")
		if err != nil {
			return nil, domain.NewDataError(path, line, err)
		}

		row := domain.PriceRow{Timestamp: ts}
		for lvl := 1; lvl <= 3; lvl++ {
			bp, bv, err := levelFields(rec, header, "bid", lvl)
			if err != nil {
				return nil, domain.NewDataError(path, line, err)
			}
			row.BidPrices[lvl-1] = bp
			row.BidVolumes[lvl-1] = bv

			ap, av, err := levelFields(rec, header, "ask", lvl)
			if err != nil {
				return nil, domain.NewDataError(path, line, err)
			}
			row.AskPrices[lvl-1] = ap
			row.AskVolumes[lvl-1] = av
		}
		rows[ts] = row
	}
	return rows, nil
}

// LoadTrades reads a trades CSV (timestamp, price, quantity) grouped by
// timestamp; multiple trades may share one timestamp and keep file order.
func LoadTrades(path string) (map[int64][]*domain.Trade, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	trades := make(map[int64][]*domain.Trade)
	for i, rec := range records {
		line := i + 2
		ts, err := fieldInt(rec, header, "timestamp")
		if err != nil {
			return nil, domain.NewDataError(path, line, err)
		}
		price, err := fieldInt(rec, header, "price")
		if err != nil {
			return nil, domain.NewDataError(path, line, err)
		}
		qty, err := fieldInt(rec, header, "quantity")
		if err != nil {
			return nil, domain.NewDataError(path, line, err)
		}
		trades[ts] = append(trades[ts], &domain.Trade{Timestamp: ts, Price: price, Quantity: qty})
	}
	return trades, nil
}

func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, domain.NewDataError(path, 0, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, domain.NewDataError(path, 0, err)
	}
	if len(all) == 0 {
		return nil, nil, domain.NewDataError(path, 0, fmt.Errorf("empty file"))
	}

	header := make(map[string]int, len(all[0]))
	for idx, name := range all[0] {
		header[name] = idx
	}
	return all[1:], header, nil
}

func fieldInt(rec []string, header map[string]int, name string) (int64, error) {
	idx, ok := header[name]
	if !ok {
		return 0, fmt.Errorf("missing column %q", name)
	}
	if idx >= len(rec) {
		return 0, fmt.Errorf("short row: no value for %q", name)
	}
	v, err := strconv.ParseInt(rec[idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return v, nil
}

// levelFields parses one bid/ask level. An empty price cell yields a nil
// price (absent level); an empty volume cell yields zero.
func levelFields(rec []string, header map[string]int, side string, lvl int) (*int64, int64, error) {
	priceCol := fmt.Sprintf("%s_price_%d", side, lvl)
	volumeCol := fmt.Sprintf("%s_volume_%d", side, lvl)

	priceRaw, err := fieldRaw(rec, header, priceCol)
	if err != nil {
		return nil, 0, err
	}
	volumeRaw, err := fieldRaw(rec, header, volumeCol)
	if err != nil {
		return nil, 0, err
	}

	var price *int64
	if priceRaw != "" {
		p, err := strconv.ParseInt(priceRaw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("column %q: %w", priceCol, err)
		}
		price = &p
	}

	var volume int64
	if volumeRaw != "" {
		volume, err = strconv.ParseInt(volumeRaw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("column %q: %w", volumeCol, err)
		}
	}
	return price, volume, nil
}

func fieldRaw(rec []string, header map[string]int, name string) (string, error) {
	idx, ok := header[name]
	if !ok {
		return "", fmt.Errorf("missing column %q", name)
	}
	if idx >= len(rec) {
		return "", fmt.Errorf("short row: no value for %q", name)
	}
	return rec[idx], nil
}
