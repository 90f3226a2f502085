package engine

import "sync/atomic"

// Metrics provides lightweight run counters without external
// dependencies. Atomics keep external readers safe while the replay
// loop runs.
type Metrics struct {
	ticksReplayed  atomic.Uint64
	ordersReceived atomic.Uint64
	ordersDropped  atomic.Uint64 // unknown product or no room under the limit
	fills          atomic.Uint64
	filledQty      atomic.Int64
}

// RecordTick records one replayed tick.
func (m *Metrics) RecordTick() {
	m.ticksReplayed.Add(1)
}

// RecordOrder records one strategy order handed to the matcher.
func (m *Metrics) RecordOrder() {
	m.ordersReceived.Add(1)
}

// RecordDrop records an order skipped without any fill.
func (m *Metrics) RecordDrop() {
	m.ordersDropped.Add(1)
}

// RecordFill records one fill of qty units.
func (m *Metrics) RecordFill(qty int64) {
	m.fills.Add(1)
	m.filledQty.Add(qty)
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	TicksReplayed  uint64
	OrdersReceived uint64
	OrdersDropped  uint64
	Fills          uint64
	FilledQty      int64
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		TicksReplayed:  m.ticksReplayed.Load(),
		OrdersReceived: m.ordersReceived.Load(),
		OrdersDropped:  m.ordersDropped.Load(),
		Fills:          m.fills.Load(),
		FilledQty:      m.filledQty.Load(),
	}
}
