package domain

// Candle is an OHLCV aggregate over a contiguous run of trades.
// Corresponds to the per-(pair, interval) candle table.
type Candle struct {
	Open      float64
	Close     float64
	High      float64
	Low       float64
	Volume    float64 // sum of constituent trade quantities
	TradeID   int64   // id of the last trade folded into the candle
	StartTime int64   // timestamp of the first trade (ms)
	EndTime   int64   // timestamp of the last trade (ms)
}
