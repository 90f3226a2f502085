package strategy

import (
	"math"

	"backtest_go/internal/domain"
)

// MeanReversionStrategy trades a single product against the z-score of
// its mid price over a lookback window. It is stateful and
// deterministic. A ring buffer keeps the tick loop allocation-free.
type MeanReversionStrategy struct {
	symbol    string
	lookback  int
	tradeSize int64
	entryZ    float64 // |z| that triggers an entry
	exitZ     float64 // |z| below which the position is closed

	// State (Ring Buffer)
	mids  []float64
	head  int // Current write position
	count int // Number of elements filled
}

// NewMeanReversionStrategy creates a new instance.
func NewMeanReversionStrategy(symbol string, lookback int, tradeSize int64) *MeanReversionStrategy {
	if lookback < 2 {
		panic("MeanReversionStrategy: lookback must be at least 2")
	}
	return &MeanReversionStrategy{
		symbol:    symbol,
		lookback:  lookback,
		tradeSize: tradeSize,
		entryZ:    1.5,
		exitZ:     0.25,
		mids:      make([]float64, lookback), // Fixed size allocation
	}
}

// OnTick processes the tick snapshot and returns desired orders. It
// never requests a run-wide position-limit override.
func (s *MeanReversionStrategy) OnTick(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
	book, ok := snap.OrderDepth[s.symbol]
	if !ok {
		return nil, 0
	}

	bestBid, okBid := book.BestBid()
	bestAsk, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		// No market this tick: sit out rather than quote into a void.
		return nil, 0
	}

	mid := float64(bestBid+bestAsk) / 2

	// Update price history (ring buffer).
	s.mids[s.head] = mid
	s.head = (s.head + 1) % s.lookback
	if s.count < s.lookback {
		s.count++
	}
	if s.count < s.lookback {
		return nil, 0
	}

	z := s.zScore(mid)
	pos := snap.Positions[s.symbol]

	var orders []domain.Order
	switch {
	case pos == 0 && z <= -s.entryZ:
		// Price stretched below the mean: buy at the ask.
		orders = append(orders, domain.Order{Symbol: s.symbol, Price: bestAsk, Quantity: s.tradeSize})
	case pos == 0 && z >= s.entryZ:
		orders = append(orders, domain.Order{Symbol: s.symbol, Price: bestBid, Quantity: -s.tradeSize})
	case pos > 0 && z >= -s.exitZ:
		// Reverted: close the long into the bid.
		orders = append(orders, domain.Order{Symbol: s.symbol, Price: bestBid, Quantity: -pos})
	case pos < 0 && z <= s.exitZ:
		orders = append(orders, domain.Order{Symbol: s.symbol, Price: bestAsk, Quantity: -pos})
	}

	if len(orders) == 0 {
		return nil, 0
	}
	return map[string][]domain.Order{s.symbol: orders}, 0
}

// zScore returns (latest - mean) / stddev over the filled window. A flat
// window yields zero instead of dividing by zero.
func (s *MeanReversionStrategy) zScore(latest float64) float64 {
	var sum float64
	for i := 0; i < s.count; i++ {
		sum += s.mids[i]
	}
	mean := sum / float64(s.count)

	var variance float64
	for i := 0; i < s.count; i++ {
		d := s.mids[i] - mean
		variance += d * d
	}
	variance /= float64(s.count - 1)

	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return 0
	}
	return (latest - mean) / sigma
}
