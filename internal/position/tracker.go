// Package position implements a FIFO lot ledger: realized PnL is
// attributed by closing the oldest opposing lots first.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Lot is an open unit of position at a specific entry price. Quantity is
// always positive; the side is implied by the queue holding the lot.
type Lot struct {
	Quantity int64
	Price    decimal.Decimal
}

// Tracker accumulates realized PnL and open lots from a stream of signed
// fills for one product. State persists for a whole run and is only
// mutated through ApplyFill.
//
// Invariant: the long queue and the short queue are never both non-empty;
// an opposing fill closes existing lots before opening new ones.
type Tracker struct {
	position   int64
	realized   decimal.Decimal
	longQueue  []Lot
	shortQueue []Lot
}

// NewTracker returns a flat tracker with zero realized PnL.
func NewTracker() *Tracker {
	return &Tracker{realized: decimal.Zero}
}

// ApplyFill records a signed fill at the given price. Buys drain the
// short queue head-first before opening long lots; sells mirror against
// the long queue. The price must be the counterparty's price, not the
// aggressor's limit.
func (t *Tracker) ApplyFill(quantity int64, price decimal.Decimal) {
	if quantity == 0 {
		return
	}
	if quantity > 0 {
		t.processBuy(quantity, price)
	} else {
		t.processSell(-quantity, price)
	}
	t.position += quantity
}

func (t *Tracker) processBuy(quantity int64, price decimal.Decimal) {
	remaining := quantity

	// Close shorts oldest-first, realizing qty * (entry - fill).
	for remaining > 0 && len(t.shortQueue) > 0 {
		lot := &t.shortQueue[0]
		closed := min(remaining, lot.Quantity)
		t.realized = t.realized.Add(decimal.NewFromInt(closed).Mul(lot.Price.Sub(price)))
		remaining -= closed
		if closed == lot.Quantity {
			t.shortQueue = t.shortQueue[1:]
		} else {
			lot.Quantity -= closed
		}
	}

	// Leftover opens a new long lot at the tail; lots are never merged so
	// FIFO entry-price order is preserved for future closes.
	if remaining > 0 {
		t.longQueue = append(t.longQueue, Lot{Quantity: remaining, Price: price})
	}
}

func (t *Tracker) processSell(quantity int64, price decimal.Decimal) {
	remaining := quantity

	// Close longs oldest-first, realizing qty * (fill - entry).
	for remaining > 0 && len(t.longQueue) > 0 {
		lot := &t.longQueue[0]
		closed := min(remaining, lot.Quantity)
		t.realized = t.realized.Add(decimal.NewFromInt(closed).Mul(price.Sub(lot.Price)))
		remaining -= closed
		if closed == lot.Quantity {
			t.longQueue = t.longQueue[1:]
		} else {
			lot.Quantity -= closed
		}
	}

	if remaining > 0 {
		t.shortQueue = append(t.shortQueue, Lot{Quantity: remaining, Price: price})
	}
}

// Position returns the signed net position:
// sum(long quantities) - sum(short quantities).
func (t *Tracker) Position() int64 {
	return t.position
}

// RealizedPnL returns the accumulated realized PnL. It is only ever
// updated on fills, never recomputed from scratch.
func (t *Tracker) RealizedPnL() decimal.Decimal {
	return t.realized
}

// UnrealizedPnL marks all open lots against referencePrice. It is a pure
// function of the current lots, O(open lots). When both queues are empty
// the result is exactly zero.
func (t *Tracker) UnrealizedPnL(referencePrice decimal.Decimal) decimal.Decimal {
	unrealized := decimal.Zero
	for _, lot := range t.longQueue {
		unrealized = unrealized.Add(decimal.NewFromInt(lot.Quantity).Mul(referencePrice.Sub(lot.Price)))
	}
	for _, lot := range t.shortQueue {
		unrealized = unrealized.Add(decimal.NewFromInt(lot.Quantity).Mul(lot.Price.Sub(referencePrice)))
	}
	return unrealized
}

// AverageCost returns the volume-weighted entry price of the open lots,
// or zero when flat.
func (t *Tracker) AverageCost() decimal.Decimal {
	totalCost := decimal.Zero
	var totalQty int64
	for _, lot := range t.longQueue {
		totalCost = totalCost.Add(decimal.NewFromInt(lot.Quantity).Mul(lot.Price))
		totalQty += lot.Quantity
	}
	for _, lot := range t.shortQueue {
		totalCost = totalCost.Add(decimal.NewFromInt(lot.Quantity).Mul(lot.Price))
		totalQty += lot.Quantity
	}
	if totalQty == 0 {
		return decimal.Zero
	}
	return totalCost.Div(decimal.NewFromInt(totalQty))
}

// OpenLots returns copies of the long and short queues, oldest first.
func (t *Tracker) OpenLots() (longs, shorts []Lot) {
	longs = append(longs, t.longQueue...)
	shorts = append(shorts, t.shortQueue...)
	return longs, shorts
}

// VerifyInvariant panics when the ledger state is inconsistent. Call
// after any state change to catch corruption at the point it happens.
func (t *Tracker) VerifyInvariant() {
	if len(t.longQueue) > 0 && len(t.shortQueue) > 0 {
		panic(fmt.Sprintf("TRACKER_INVARIANT_STRADDLE: %d long lots, %d short lots",
			len(t.longQueue), len(t.shortQueue)))
	}

	var net int64
	for _, lot := range t.longQueue {
		if lot.Quantity <= 0 {
			panic(fmt.Sprintf("TRACKER_INVARIANT_BAD_LOT: long lot qty %d", lot.Quantity))
		}
		net += lot.Quantity
	}
	for _, lot := range t.shortQueue {
		if lot.Quantity <= 0 {
			panic(fmt.Sprintf("TRACKER_INVARIANT_BAD_LOT: short lot qty %d", lot.Quantity))
		}
		net -= lot.Quantity
	}

	if net != t.position {
		panic(fmt.Sprintf("TRACKER_INVARIANT_POSITION_MISMATCH: lots net %d, position %d",
			net, t.position))
	}
}
