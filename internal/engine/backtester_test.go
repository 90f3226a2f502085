package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
)

// scriptedStrategy drives the engine from tests.
type scriptedStrategy struct {
	onTick func(snap *domain.Snapshot) (map[string][]domain.Order, int64)
}

func (s *scriptedStrategy) OnTick(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
	if s.onTick == nil {
		return nil, 0
	}
	return s.onTick(snap)
}

func row(ts, bid, bidVol, ask, askVol int64) domain.PriceRow {
	return domain.PriceRow{
		Timestamp:  ts,
		BidPrices:  [3]*int64{i64(bid), nil, nil},
		BidVolumes: [3]int64{bidVol, 0, 0},
		AskPrices:  [3]*int64{i64(ask), nil, nil},
		AskVolumes: [3]int64{askVol, 0, 0},
	}
}

func productData(rows ...domain.PriceRow) ProductData {
	prices := make(map[int64]domain.PriceRow, len(rows))
	for _, r := range rows {
		prices[r.Timestamp] = r
	}
	return ProductData{Prices: prices, Trades: map[int64][]*domain.Trade{}}
}

func TestRun_TimestampUnion(t *testing.T) {
	var seen []int64
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		seen = append(seen, snap.Timestamp)
		return nil, 0
	}}

	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 5, 101, 5), row(2, 99, 5, 101, 5)),
		"BBB": productData(row(2, 49, 5, 51, 5), row(3, 49, 5, 51, 5)),
	}
	b, err := New(data, strat, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int64{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("strategy ticks: want %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("strategy ticks: want %v, got %v", want, seen)
		}
	}

	// One history entry per replayed tick plus the liquidation tick.
	h := b.History()
	wantTS := []int64{1, 2, 3, 4}
	if len(h.Timestamps) != len(wantTS) {
		t.Fatalf("history timestamps: want %v, got %v", wantTS, h.Timestamps)
	}
	for i := range wantTS {
		if h.Timestamps[i] != wantTS[i] {
			t.Fatalf("history timestamps: want %v, got %v", wantTS, h.Timestamps)
		}
	}
	for _, p := range b.Products() {
		series := h.Products[p]
		if len(series.Positions) != 4 || len(series.MidPrices) != 4 || len(series.TotalPnL) != 4 {
			t.Errorf("product %s: all series must have 4 entries", p)
		}
	}
}

func TestRun_BookCarryForward(t *testing.T) {
	var midAtTick2 decimal.Decimal
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		if snap.Timestamp == 2 {
			midAtTick2 = snap.OrderDepth["AAA"].MidPrice(decimal.NewFromInt(10000))
		}
		return nil, 0
	}}

	// AAA has a row only at tick 1; BBB creates tick 2.
	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 5, 101, 5)),
		"BBB": productData(row(1, 49, 5, 51, 5), row(2, 49, 5, 51, 5)),
	}
	b, err := New(data, strat, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !midAtTick2.Equal(decimal.NewFromInt(100)) {
		t.Errorf("tick-1 book must carry forward to tick 2: want mid 100, got %s", midAtTick2)
	}
}

func TestRun_Liquidation(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		if snap.Timestamp == 1 {
			return map[string][]domain.Order{
				"AAA": {{Symbol: "AAA", Price: 100, Quantity: 8}},
			}, 0
		}
		return nil, 0
	}}

	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 20, 100, 10), row(2, 119, 20, 121, 20)),
	}
	b, err := New(data, strat, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := b.Position("AAA"); got != 0 {
		t.Errorf("post-liquidation position: want 0, got %d", got)
	}

	// Closing fill: 8 @ mid 120 against entry 100 => realized 160,
	// verified against the tracker's own accounting.
	tr := b.Tracker("AAA")
	if got := tr.RealizedPnL(); !got.Equal(decimal.NewFromInt(160)) {
		t.Errorf("realized after liquidation: want 160, got %s", got)
	}
	if got := tr.UnrealizedPnL(decimal.NewFromInt(120)); !got.IsZero() {
		t.Errorf("flat book must mark exactly zero, got %s", got)
	}

	h := b.History()
	if len(h.Timestamps) != 3 || h.Timestamps[2] != 3 {
		t.Fatalf("want synthetic tick 3 appended, got %v", h.Timestamps)
	}
	series := h.Products["AAA"]
	if series.Positions[2] != 0 {
		t.Errorf("liquidation tick position: want 0, got %d", series.Positions[2])
	}
	if !series.RealizedPnL[2].Equal(decimal.NewFromInt(160)) {
		t.Errorf("liquidation tick realized: want 160, got %s", series.RealizedPnL[2])
	}
	if !series.UnrealizedPnL[2].IsZero() {
		t.Errorf("liquidation tick unrealized: want 0, got %s", series.UnrealizedPnL[2])
	}
}

func TestRun_FallbackMidKeepsSeriesPopulated(t *testing.T) {
	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 5, 101, 5), row(2, 99, 5, 101, 5)),
		"BBB": {Prices: map[int64]domain.PriceRow{}, Trades: map[int64][]*domain.Trade{}},
	}
	b, err := New(data, nil, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	fallback := decimal.NewFromInt(FallbackMidPrice)
	series := b.History().Products["BBB"]
	if len(series.MidPrices) != 3 {
		t.Fatalf("BBB series must cover every tick, got %d entries", len(series.MidPrices))
	}
	for i, mid := range series.MidPrices {
		if !mid.Equal(fallback) {
			t.Errorf("tick %d: empty-book mid must be the fallback %s, got %s", i, fallback, mid)
		}
	}
}

func TestRun_EmptyDataSkipsLiquidation(t *testing.T) {
	data := map[string]ProductData{
		"AAA": {Prices: map[int64]domain.PriceRow{}, Trades: map[int64][]*domain.Trade{}},
	}
	b, err := New(data, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := b.History().Ticks(); got != 0 {
		t.Errorf("empty run must record nothing, got %d ticks", got)
	}
}

func TestRun_StrategyOverrideLimit(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		return map[string][]domain.Order{
			"AAA": {{Symbol: "AAA", Price: 101, Quantity: 100}},
		}, 30
	}}

	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 1000, 101, 1000)),
	}
	b, err := New(data, strat, Config{PositionLimits: map[string]int64{"AAA": 10}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The override (30) replaces the product limit (10) for the run.
	series := b.History().Products["AAA"]
	if series.Positions[0] != 30 {
		t.Errorf("tick-1 position under override: want 30, got %d", series.Positions[0])
	}
}

func TestRun_SnapshotReflectsPositions(t *testing.T) {
	var posAtTick2 int64 = -1
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		switch snap.Timestamp {
		case 1:
			return map[string][]domain.Order{
				"AAA": {{Symbol: "AAA", Price: 101, Quantity: 5}},
			}, 0
		case 2:
			posAtTick2 = snap.Positions["AAA"]
		}
		return nil, 0
	}}

	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 50, 101, 50), row(2, 99, 50, 101, 50)),
	}
	b, err := New(data, strat, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if posAtTick2 != 5 {
		t.Errorf("snapshot position at tick 2: want 5, got %d", posAtTick2)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 5, 101, 5)),
	}
	b, err := New(data, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestNew_NoProducts(t *testing.T) {
	if _, err := New(map[string]ProductData{}, nil, Config{}); !errors.Is(err, domain.ErrNoProducts) {
		t.Errorf("want ErrNoProducts, got %v", err)
	}
}

func TestNewSingleProduct(t *testing.T) {
	b, err := NewSingleProduct(productData(row(1, 99, 5, 101, 5)), nil, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("NewSingleProduct: %v", err)
	}
	products := b.Products()
	if len(products) != 1 || products[0] != SingleProductSymbol {
		t.Fatalf("universe: want [%s], got %v", SingleProductSymbol, products)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.History().Products[SingleProductSymbol] == nil {
		t.Error("single-product history missing")
	}
}

func TestSummary(t *testing.T) {
	strat := &scriptedStrategy{onTick: func(snap *domain.Snapshot) (map[string][]domain.Order, int64) {
		if snap.Timestamp == 1 {
			return map[string][]domain.Order{
				"AAA": {{Symbol: "AAA", Price: 100, Quantity: 8}},
			}, 0
		}
		return nil, 0
	}}
	data := map[string]ProductData{
		"AAA": productData(row(1, 99, 20, 100, 10), row(2, 119, 20, 121, 20)),
	}
	b, err := New(data, strat, Config{DefaultLimit: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summaries := b.Summary()
	if len(summaries) != 1 {
		t.Fatalf("want 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.Product != "AAA" || s.FinalPosition != 0 {
		t.Errorf("summary product/position: got %+v", s)
	}
	if !s.RealizedPnL.Equal(decimal.NewFromInt(160)) {
		t.Errorf("summary realized: want 160, got %s", s.RealizedPnL)
	}
	if !s.PeakRealized.Equal(decimal.NewFromInt(160)) || !s.WorstRealized.IsZero() {
		t.Errorf("peak/worst realized: got peak %s worst %s", s.PeakRealized, s.WorstRealized)
	}
}
