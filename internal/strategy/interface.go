package strategy

import "backtest_go/internal/domain"

// Strategy is the decision policy called synchronously by the backtest
// driver, once per tick.
//
// OnTick receives the tick's market snapshot and returns the desired
// orders grouped by product, plus an optional run-wide position-limit
// override. An override of 0 means "use the per-product limit table".
// Returning an empty or nil map is valid: the strategy sits out the tick.
type Strategy interface {
	OnTick(snap *domain.Snapshot) (map[string][]domain.Order, int64)
}
