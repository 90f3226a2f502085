package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OrderBook is a per-product snapshot of resting liquidity at discrete
// price levels. It is rebuilt wholesale from each market-data row, not
// patched incrementally; state lives only for the current tick.
//
// Invariant: volumes are strictly positive. A level whose volume reaches
// zero is deleted, never stored as zero.
type OrderBook struct {
	BuyOrders  map[int64]int64 // price -> resting bid volume
	SellOrders map[int64]int64 // price -> resting ask volume
}

// NewOrderBook returns an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		BuyOrders:  make(map[int64]int64),
		SellOrders: make(map[int64]int64),
	}
}

// Rebuild discards all levels and reloads them from row. Absent levels
// (nil price) are skipped. Calling it twice with the same row yields the
// same book.
func (b *OrderBook) Rebuild(row PriceRow) {
	clear(b.BuyOrders)
	clear(b.SellOrders)

	for i := 0; i < 3; i++ {
		if p := row.BidPrices[i]; p != nil {
			b.BuyOrders[*p] = row.BidVolumes[i]
		}
		if p := row.AskPrices[i]; p != nil {
			b.SellOrders[*p] = row.AskVolumes[i]
		}
	}
}

// BestBid returns the highest bid price. ok is false when the bid side
// is empty; callers treat that as "no market", not as an error.
func (b *OrderBook) BestBid() (int64, bool) {
	return bestPrice(b.BuyOrders, func(p, best int64) bool { return p > best })
}

// BestAsk returns the lowest ask price.
func (b *OrderBook) BestAsk() (int64, bool) {
	return bestPrice(b.SellOrders, func(p, best int64) bool { return p < best })
}

func bestPrice(levels map[int64]int64, better func(p, best int64) bool) (int64, bool) {
	found := false
	var best int64
	for p := range levels {
		if !found || better(p, best) {
			best = p
			found = true
		}
	}
	return best, found
}

// MidPrice returns (bestBid+bestAsk)/2. When either side is empty it
// returns fallback so that downstream history series stay populated for
// every tick.
func (b *OrderBook) MidPrice(fallback decimal.Decimal) decimal.Decimal {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return fallback
	}
	return decimal.NewFromInt(bid + ask).Div(decimal.NewFromInt(2))
}

// BidPricesAtOrAbove returns bid prices >= limit sorted descending
// (best bid first). Used when a sell order sweeps the bid side.
func (b *OrderBook) BidPricesAtOrAbove(limit int64) []int64 {
	prices := collectPrices(b.BuyOrders, func(p int64) bool { return p >= limit })
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	return prices
}

// AskPricesAtOrBelow returns ask prices <= limit sorted ascending
// (best ask first). Used when a buy order sweeps the ask side.
func (b *OrderBook) AskPricesAtOrBelow(limit int64) []int64 {
	prices := collectPrices(b.SellOrders, func(p int64) bool { return p <= limit })
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

func collectPrices(levels map[int64]int64, keep func(int64) bool) []int64 {
	var prices []int64
	for p := range levels {
		if keep(p) {
			prices = append(prices, p)
		}
	}
	return prices
}

// ConsumeBid removes qty from the bid level at price, deleting the level
// when it is exhausted.
func (b *OrderBook) ConsumeBid(price, qty int64) {
	consume(b.BuyOrders, price, qty)
}

// ConsumeAsk removes qty from the ask level at price.
func (b *OrderBook) ConsumeAsk(price, qty int64) {
	consume(b.SellOrders, price, qty)
}

func consume(levels map[int64]int64, price, qty int64) {
	levels[price] -= qty
	if levels[price] <= 0 {
		delete(levels, price)
	}
}
