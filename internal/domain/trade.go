package domain

// Trade represents a single executed trade as delivered by the data source.
// Corresponds to the per-pair trade table.
type Trade struct {
	TradeID   int64   // source-assigned, strictly increasing per pair
	Timestamp int64   // Unix timestamp in milliseconds
	Price     float64 // execution price
	Quantity  float64 // base asset quantity
	Pair      string  // normalized pair symbol, e.g. BTCUSDT
}
