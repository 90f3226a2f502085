package domain

// Order is a single-price limit order issued by a strategy.
// Quantity is signed: positive = buy, negative = sell, zero = no-op.
// All prices are integer ticks.
type Order struct {
	Symbol   string
	Price    int64
	Quantity int64
}

// IsBuy reports whether the order adds to the position.
func (o Order) IsBuy() bool {
	return o.Quantity > 0
}

// Trade is a trade recorded in the real market at a given tick.
// It acts as passive liquidity: aggressive strategy orders may cross
// against it after the book is exhausted, and its Quantity is
// decremented in place as it is consumed during matching.
type Trade struct {
	Timestamp int64
	Price     int64
	Quantity  int64
}

// PriceRow is one market-data record: up to three bid/ask levels at a
// timestamp. A nil price marks an absent level and must not be inserted
// into the book.
type PriceRow struct {
	Timestamp  int64
	BidPrices  [3]*int64
	BidVolumes [3]int64
	AskPrices  [3]*int64
	AskVolumes [3]int64
}
