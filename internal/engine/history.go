package engine

import "github.com/shopspring/decimal"

// ProductSeries holds the per-tick trajectory of one product. All slices
// are parallel and indexed by tick; they grow by exactly one entry per
// replayed tick plus one synthetic liquidation tick.
type ProductSeries struct {
	Positions     []int64
	RealizedPnL   []decimal.Decimal
	UnrealizedPnL []decimal.Decimal
	TotalPnL      []decimal.Decimal
	MidPrices     []decimal.Decimal
}

func (s *ProductSeries) append(pos int64, realized, unrealized, mid decimal.Decimal) {
	s.Positions = append(s.Positions, pos)
	s.RealizedPnL = append(s.RealizedPnL, realized)
	s.UnrealizedPnL = append(s.UnrealizedPnL, unrealized)
	s.TotalPnL = append(s.TotalPnL, realized.Add(unrealized))
	s.MidPrices = append(s.MidPrices, mid)
}

// RunHistory is the append-only record of a run, read-only once the run
// completes. Timestamps carries every replayed tick plus the synthetic
// liquidation tick (last + 1).
type RunHistory struct {
	Timestamps []int64
	Products   map[string]*ProductSeries

	OverallRealizedPnL   []decimal.Decimal
	OverallUnrealizedPnL []decimal.Decimal
	OverallTotalPnL      []decimal.Decimal
}

func newRunHistory(products []string) *RunHistory {
	h := &RunHistory{Products: make(map[string]*ProductSeries, len(products))}
	for _, p := range products {
		h.Products[p] = &ProductSeries{}
	}
	return h
}

func (h *RunHistory) appendOverall(ts int64, realized, unrealized decimal.Decimal) {
	h.Timestamps = append(h.Timestamps, ts)
	h.OverallRealizedPnL = append(h.OverallRealizedPnL, realized)
	h.OverallUnrealizedPnL = append(h.OverallUnrealizedPnL, unrealized)
	h.OverallTotalPnL = append(h.OverallTotalPnL, realized.Add(unrealized))
}

// Ticks returns the number of recorded entries.
func (h *RunHistory) Ticks() int {
	return len(h.Timestamps)
}
