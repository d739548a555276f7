package storage

import (
	"context"

	"trade-candle-lab/internal/domain"
)

// TradeStore provides access to per-pair trade tables.
type TradeStore interface {
	// EnsureTradeTable creates the pair's trade table and its unique trade_id index if absent.
	EnsureTradeTable(ctx context.Context, pair string) error

	// InsertTrades adds a batch in one transaction. Trades whose trade_id already
	// exists are skipped, not rejected. Returns the number of newly stored rows.
	InsertTrades(ctx context.Context, pair string, trades []*domain.Trade) (int, error)

	// MaxTradeID returns the largest stored trade_id. ok is false when the
	// table is absent or empty.
	MaxTradeID(ctx context.Context, pair string) (id int64, ok bool, err error)

	// ScanTrades returns up to limit trades starting at offset, ordered by trade_id ASC.
	// Returns ErrNotFound if the pair has no trade table.
	ScanTrades(ctx context.Context, pair string, offset, limit int) ([]*domain.Trade, error)
}

// CandleStore provides access to per-(pair, interval) candle tables.
type CandleStore interface {
	// EnsureCandleTable creates the candle table if absent.
	EnsureCandleTable(ctx context.Context, pair, interval string) error

	// DropCandleTable removes the candle table. Dropping an absent table is not an error.
	DropCandleTable(ctx context.Context, pair, interval string) error

	// InsertCandles appends candles atomically, preserving slice order.
	InsertCandles(ctx context.Context, pair, interval string, candles []*domain.Candle) error

	// GetCandles returns all candles in insertion order. Returns ErrNotFound if the table is absent.
	GetCandles(ctx context.Context, pair, interval string) ([]*domain.Candle, error)
}
