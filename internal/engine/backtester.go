// Package engine replays historical order-book and trade data tick by
// tick against a strategy and records the resulting position and PnL
// trajectory.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
	"backtest_go/internal/position"
	"backtest_go/internal/strategy"
)

// FallbackMidPrice is used for the mid price whenever a product's book
// has an empty side, so that history series stay populated.
const FallbackMidPrice = 10000

// SingleProductSymbol is the product name used by NewSingleProduct.
const SingleProductSymbol = "PRODUCT"

// DefaultPositionLimits is the built-in per-product position limit table.
// Config may override individual entries; a strategy may override the
// whole run with a single value.
var DefaultPositionLimits = map[string]int64{
	"SHINX":     50,
	"LUXRAY":    250,
	"JOLTEON":   350,
	"ASH":       60,
	"MISTY":     100,
	"SUDOWOODO": 50,
	"ABRA":      50,
	"DROWZEE":   50,
}

// ProductData is one product's fully loaded input: price rows and
// historical trades keyed by timestamp.
type ProductData struct {
	Prices map[int64]domain.PriceRow
	Trades map[int64][]*domain.Trade
}

// Config carries per-run engine settings.
type Config struct {
	// PositionLimits overrides DefaultPositionLimits per product.
	PositionLimits map[string]int64
	// DefaultLimit applies to products absent from both tables.
	DefaultLimit int64
	// FallbackMid replaces FallbackMidPrice when non-zero.
	FallbackMid decimal.Decimal
}

// Backtester is one run of the simulation. It holds no ambient state:
// construct one per run and pass it explicitly. Run must be called at
// most once; the recorded history is read-only afterwards.
type Backtester struct {
	products []string // sorted, fixed at construction

	prices map[string]map[int64]domain.PriceRow
	trades map[string]map[int64][]*domain.Trade

	books     map[string]*domain.OrderBook
	trackers  map[string]*position.Tracker
	positions map[string]int64
	limits    map[string]int64

	strat       strategy.Strategy
	fallbackMid decimal.Decimal

	history *RunHistory
	metrics *Metrics
}

// New builds a run over the given product universe. The data must be
// fully loaded: a failed load never reaches this constructor.
func New(data map[string]ProductData, strat strategy.Strategy, cfg Config) (*Backtester, error) {
	if len(data) == 0 {
		return nil, domain.ErrNoProducts
	}

	products := make([]string, 0, len(data))
	for p := range data {
		products = append(products, p)
	}
	sort.Strings(products)

	fallback := decimal.NewFromInt(FallbackMidPrice)
	if !cfg.FallbackMid.IsZero() {
		fallback = cfg.FallbackMid
	}

	b := &Backtester{
		products:    products,
		prices:      make(map[string]map[int64]domain.PriceRow, len(data)),
		trades:      make(map[string]map[int64][]*domain.Trade, len(data)),
		books:       make(map[string]*domain.OrderBook, len(data)),
		trackers:    make(map[string]*position.Tracker, len(data)),
		positions:   make(map[string]int64, len(data)),
		limits:      make(map[string]int64, len(data)),
		strat:       strat,
		fallbackMid: fallback,
		history:     newRunHistory(products),
		metrics:     &Metrics{},
	}

	for _, p := range products {
		d := data[p]
		b.prices[p] = d.Prices
		b.trades[p] = d.Trades
		if b.trades[p] == nil {
			b.trades[p] = make(map[int64][]*domain.Trade)
		}
		b.books[p] = domain.NewOrderBook()
		b.trackers[p] = position.NewTracker()
		b.limits[p] = resolveLimit(p, cfg)
	}

	return b, nil
}

// NewSingleProduct builds a run with a universe of one. Single-product
// use is the general engine with one entry, addressed through
// SingleProductSymbol; there is no separate engine type for it.
func NewSingleProduct(data ProductData, strat strategy.Strategy, cfg Config) (*Backtester, error) {
	return New(map[string]ProductData{SingleProductSymbol: data}, strat, cfg)
}

func resolveLimit(product string, cfg Config) int64 {
	if l, ok := cfg.PositionLimits[product]; ok {
		return l
	}
	if l, ok := DefaultPositionLimits[product]; ok {
		return l
	}
	if cfg.DefaultLimit > 0 {
		return cfg.DefaultLimit
	}
	return 50
}

// Run replays every tick in the sorted union of all products' timestamps,
// then liquidates open positions at mid price and appends one synthetic
// tick. Correctness depends on strict tick ordering, so the loop is
// single-threaded. A panicking strategy aborts the run after a state
// dump; ctx cancellation stops the replay between ticks.
func (b *Backtester) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("RUN_PANIC_DETECTED", slog.Any("panic", r))
			b.DumpState("panic_dump.json")
			panic(r)
		}
	}()

	timestamps := b.unionTimestamps()

	for _, ts := range timestamps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.replayTick(ts)
	}

	if len(timestamps) > 0 {
		b.liquidate(timestamps[len(timestamps)-1])
	}

	return nil
}

// unionTimestamps returns the sorted, deduplicated union of all
// products' price-row timestamps.
func (b *Backtester) unionTimestamps() []int64 {
	seen := make(map[int64]struct{})
	for _, p := range b.products {
		for ts := range b.prices[p] {
			seen[ts] = struct{}{}
		}
	}
	timestamps := make([]int64, 0, len(seen))
	for ts := range seen {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps
}

func (b *Backtester) replayTick(ts int64) {
	// A product without a row at this tick keeps its prior-tick book:
	// intentional carry-forward, not a data gap.
	for _, p := range b.products {
		if row, ok := b.prices[p][ts]; ok {
			b.books[p].Rebuild(row)
		}
	}

	snap := b.snapshot(ts)

	var orders []domain.Order
	var maxPos int64
	if b.strat != nil {
		ordersByProduct, override := b.strat.OnTick(snap)
		maxPos = override
		// Flatten in sorted product order so runs are reproducible.
		flattenKeys := make([]string, 0, len(ordersByProduct))
		for p := range ordersByProduct {
			flattenKeys = append(flattenKeys, p)
		}
		sort.Strings(flattenKeys)
		for _, p := range flattenKeys {
			orders = append(orders, ordersByProduct[p]...)
		}
	}

	b.matchOrders(orders, ts, maxPos)
	b.recordTick(ts)
	b.metrics.RecordTick()
}

// snapshot builds the fixed-shape state handed to the strategy. The maps
// are rebuilt per tick; the books are the live per-product books, as the
// strategy is entitled to read current depth.
func (b *Backtester) snapshot(ts int64) *domain.Snapshot {
	depth := make(map[string]*domain.OrderBook, len(b.products))
	positions := make(map[string]int64, len(b.products))
	for _, p := range b.products {
		depth[p] = b.books[p]
		positions[p] = b.positions[p]
	}
	return &domain.Snapshot{Timestamp: ts, OrderDepth: depth, Positions: positions}
}

func (b *Backtester) recordTick(ts int64) {
	overallRealized := decimal.Zero
	overallUnrealized := decimal.Zero

	for _, p := range b.products {
		mid := b.books[p].MidPrice(b.fallbackMid)
		tracker := b.trackers[p]
		realized := tracker.RealizedPnL()
		unrealized := tracker.UnrealizedPnL(mid)

		b.history.Products[p].append(b.positions[p], realized, unrealized, mid)

		overallRealized = overallRealized.Add(realized)
		overallUnrealized = overallUnrealized.Add(unrealized)
	}

	b.history.appendOverall(ts, overallRealized, overallUnrealized)
}

// liquidate force-closes every non-zero position at its product's current
// mid price and appends one synthetic tick (last + 1) so every recorded
// position visibly returns to zero. The closing cash flow goes through
// the FIFO tracker only; there is no second accumulator to diverge from.
func (b *Backtester) liquidate(lastTS int64) {
	for _, p := range b.products {
		if b.positions[p] == 0 {
			continue
		}
		mid := b.books[p].MidPrice(b.fallbackMid)
		slog.Info("liquidating position",
			slog.String("product", p),
			slog.Int64("position", b.positions[p]),
			slog.String("mid", mid.String()))

		b.trackers[p].ApplyFill(-b.positions[p], mid)
		b.positions[p] = 0
	}

	b.recordTick(lastTS + 1)
}

// History returns the recorded run history. Treat as read-only.
func (b *Backtester) History() *RunHistory {
	return b.history
}

// Position returns the current position for one product.
func (b *Backtester) Position(product string) int64 {
	return b.positions[product]
}

// Tracker returns the FIFO ledger for one product.
func (b *Backtester) Tracker(product string) *position.Tracker {
	return b.trackers[product]
}

// OrderBook returns the current book for one product.
func (b *Backtester) OrderBook(product string) *domain.OrderBook {
	return b.books[product]
}

// Products returns the run's universe in sorted order.
func (b *Backtester) Products() []string {
	out := make([]string, len(b.products))
	copy(out, b.products)
	return out
}

// Stats returns the run counters.
func (b *Backtester) Stats() Stats {
	return b.metrics.Snapshot()
}

// DumpState writes positions and realized PnL to a file for post-mortem
// inspection after a run aborts.
func (b *Backtester) DumpState(filename string) {
	slog.Info("dumping run state", slog.String("file", filename))

	realized := make(map[string]string, len(b.products))
	for _, p := range b.products {
		realized[p] = b.trackers[p].RealizedPnL().String()
	}
	data := struct {
		Ticks     int               `json:"ticks_recorded"`
		Positions map[string]int64  `json:"positions"`
		Realized  map[string]string `json:"realized_pnl"`
	}{
		Ticks:     b.history.Ticks(),
		Positions: b.positions,
		Realized:  realized,
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("failed to marshal run state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, out, 0644); err != nil {
		slog.Error("failed to write run state", slog.Any("error", err))
	}
}

// ProductSummary is the final per-product result of a run.
type ProductSummary struct {
	Product       string
	FinalPosition int64
	RealizedPnL   decimal.Decimal
	TotalPnL      decimal.Decimal
	PeakRealized  decimal.Decimal
	WorstRealized decimal.Decimal
}

// Summary returns final per-product results in sorted product order.
func (b *Backtester) Summary() []ProductSummary {
	summaries := make([]ProductSummary, 0, len(b.products))
	for _, p := range b.products {
		series := b.history.Products[p]
		s := ProductSummary{
			Product:       p,
			FinalPosition: b.positions[p],
			RealizedPnL:   b.trackers[p].RealizedPnL(),
		}
		if n := len(series.TotalPnL); n > 0 {
			s.TotalPnL = series.TotalPnL[n-1]
			s.PeakRealized = series.RealizedPnL[0]
			s.WorstRealized = series.RealizedPnL[0]
			for _, r := range series.RealizedPnL {
				if r.GreaterThan(s.PeakRealized) {
					s.PeakRealized = r
				}
				if r.LessThan(s.WorstRealized) {
					s.WorstRealized = r
				}
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// LogSummary writes the final run results through slog.
func (b *Backtester) LogSummary() {
	overall := decimal.Zero
	overallRealized := decimal.Zero
	for _, s := range b.Summary() {
		slog.Info("product result",
			slog.String("product", s.Product),
			slog.Int64("final_position", s.FinalPosition),
			slog.String("realized_pnl", s.RealizedPnL.String()),
			slog.String("total_pnl", s.TotalPnL.String()),
			slog.String("peak_realized", s.PeakRealized.String()),
			slog.String("worst_realized", s.WorstRealized.String()))
		overall = overall.Add(s.TotalPnL)
		overallRealized = overallRealized.Add(s.RealizedPnL)
	}
	stats := b.Stats()
	slog.Info("run complete",
		slog.String("total_realized_pnl", overallRealized.String()),
		slog.String("total_pnl", overall.String()),
		slog.Uint64("ticks", stats.TicksReplayed),
		slog.Uint64("orders", stats.OrdersReceived),
		slog.Uint64("orders_dropped", stats.OrdersDropped),
		slog.Uint64("fills", stats.Fills),
		slog.Int64("filled_qty", stats.FilledQty))
}
