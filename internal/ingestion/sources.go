package ingestion

import (
	"context"
	"errors"

	"trade-candle-lab/internal/domain"
)

// ErrSourceTimeout marks a transient fetch failure that may be retried at the same cursor.
var ErrSourceTimeout = errors.New("trade source timed out")

// TradeSource provides raw trades from an external data source.
type TradeSource interface {
	// Fetch returns at most limit trades for pair with trade_id >= fromID,
	// in ascending trade_id order. No more data is a short or empty result,
	// never an error. Transient timeouts wrap ErrSourceTimeout.
	Fetch(ctx context.Context, pair string, fromID int64, limit int) ([]*domain.Trade, error)
}
