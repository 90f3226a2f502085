package engine

import (
	"github.com/shopspring/decimal"

	"backtest_go/internal/domain"
	"backtest_go/internal/position"
)

// matchOrders fills a tick's batch of strategy orders. Orders are grouped
// by product; products outside the run's universe are dropped silently.
// maxPos > 0 overrides every product's limit for this run.
func (b *Backtester) matchOrders(orders []domain.Order, timestamp int64, maxPos int64) {
	ordersByProduct := make(map[string][]domain.Order)
	for _, o := range orders {
		b.metrics.RecordOrder()
		ordersByProduct[o.Symbol] = append(ordersByProduct[o.Symbol], o)
	}

	for product, productOrders := range ordersByProduct {
		if _, ok := b.books[product]; !ok {
			for range productOrders {
				b.metrics.RecordDrop()
			}
			continue
		}
		b.matchProductOrders(product, productOrders, timestamp, maxPos)
	}
}

// matchProductOrders processes one product's orders in the order the
// strategy gave them. Each order consumes the book and trade liquidity
// left behind by the previous one; there is no snapshot isolation within
// a tick.
func (b *Backtester) matchProductOrders(product string, orders []domain.Order, timestamp int64, maxPos int64) {
	book := b.books[product]
	tracker := b.trackers[product]

	for _, order := range orders {
		if order.Quantity == 0 {
			continue
		}

		qtyToFill := order.Quantity
		if qtyToFill < 0 {
			qtyToFill = -qtyToFill
		}

		// Clip to the remaining room under the position limit in the
		// order's direction. No room is a silent no-fill, not an error.
		limit := b.limits[product]
		if maxPos > 0 {
			limit = maxPos
		}
		var room int64
		if order.IsBuy() {
			room = limit - b.positions[product]
		} else {
			room = b.positions[product] + limit
		}
		if room <= 0 {
			b.metrics.RecordDrop()
			continue
		}
		qtyToFill = min(qtyToFill, room)

		var filled int64
		if order.IsBuy() {
			// Book crossing: best ask first.
			for _, price := range book.AskPricesAtOrBelow(order.Price) {
				fill := min(qtyToFill-filled, book.SellOrders[price])
				if fill <= 0 {
					continue
				}
				filled += fill
				b.applyFill(product, tracker, fill, price)
				book.ConsumeAsk(price, fill)
				if filled == qtyToFill {
					break
				}
			}
			// Historical-trade crossing at or below the limit price.
			for _, trade := range b.tickTrades(product, timestamp) {
				if filled == qtyToFill {
					break
				}
				if trade.Price > order.Price || trade.Quantity <= 0 {
					continue
				}
				fill := min(qtyToFill-filled, trade.Quantity)
				filled += fill
				b.applyFill(product, tracker, fill, trade.Price)
				trade.Quantity -= fill
			}
		} else {
			// Book crossing: best bid first.
			for _, price := range book.BidPricesAtOrAbove(order.Price) {
				fill := min(qtyToFill-filled, book.BuyOrders[price])
				if fill <= 0 {
					continue
				}
				filled += fill
				b.applyFill(product, tracker, -fill, price)
				book.ConsumeBid(price, fill)
				if filled == qtyToFill {
					break
				}
			}
			// Historical-trade crossing at or above the limit price.
			for _, trade := range b.tickTrades(product, timestamp) {
				if filled == qtyToFill {
					break
				}
				if trade.Price < order.Price || trade.Quantity <= 0 {
					continue
				}
				fill := min(qtyToFill-filled, trade.Quantity)
				filled += fill
				b.applyFill(product, tracker, -fill, trade.Price)
				trade.Quantity -= fill
			}
		}

		if filled == 0 {
			b.metrics.RecordDrop()
		}
	}

	b.pruneExhaustedTrades(product, timestamp)
}

// applyFill routes one fill through the single bookkeeping path: the
// running position plus the FIFO tracker, at the counterparty's price.
func (b *Backtester) applyFill(product string, tracker *position.Tracker, signedQty int64, price int64) {
	b.positions[product] += signedQty
	tracker.ApplyFill(signedQty, decimal.NewFromInt(price))
	qty := signedQty
	if qty < 0 {
		qty = -qty
	}
	b.metrics.RecordFill(qty)
}

// tickTrades returns the historical trades recorded at timestamp.
// Quantities are mutated in place during matching so that orders later
// in the same tick compete for the remainder.
func (b *Backtester) tickTrades(product string, timestamp int64) []*domain.Trade {
	return b.trades[product][timestamp]
}

// pruneExhaustedTrades drops fully consumed trades from the tick's list.
func (b *Backtester) pruneExhaustedTrades(product string, timestamp int64) {
	trades := b.trades[product][timestamp]
	if len(trades) == 0 {
		return
	}
	kept := trades[:0]
	for _, tr := range trades {
		if tr.Quantity > 0 {
			kept = append(kept, tr)
		}
	}
	b.trades[product][timestamp] = kept
}
