package storage

// TradeTable returns the trade table name for a normalized pair.
func TradeTable(pair string) string {
	return pair
}

// CandleTable returns the candle table name for a normalized pair and canonical interval token.
func CandleTable(pair, interval string) string {
	return pair + "_" + interval
}
