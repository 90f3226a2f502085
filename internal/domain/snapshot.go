package domain

// Snapshot is the immutable view of market state handed to the strategy
// once per tick. Fields are fixed and named; the strategy must not rely
// on anything beyond them.
type Snapshot struct {
	Timestamp  int64
	OrderDepth map[string]*OrderBook
	Positions  map[string]int64
}
