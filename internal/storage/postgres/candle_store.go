package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// candleColumns is the COPY column order for candle tables.
var candleColumns = []string{
	"open", "close", "high", "low", "volume", "trade_id", "start_time", "end_time",
}

// CandleStore implements storage.CandleStore using one PostgreSQL table per (pair, interval).
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// EnsureCandleTable creates the candle table if absent.
func (s *CandleStore) EnsureCandleTable(ctx context.Context, pair, interval string) error {
	if pair == "" || interval == "" {
		return storage.ErrInvalidInput
	}

	table := storage.CandleTable(pair, interval)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          BIGSERIAL PRIMARY KEY,
			open        DOUBLE PRECISION NOT NULL,
			close       DOUBLE PRECISION NOT NULL,
			high        DOUBLE PRECISION NOT NULL,
			low         DOUBLE PRECISION NOT NULL,
			volume      DOUBLE PRECISION NOT NULL,
			trade_id    BIGINT NOT NULL,
			start_time  BIGINT NOT NULL,
			end_time    BIGINT NOT NULL
		)
	`, ident(table))

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create candle table %s: %w", table, err)
	}
	return nil
}

// DropCandleTable removes the candle table if it exists.
func (s *CandleStore) DropCandleTable(ctx context.Context, pair, interval string) error {
	table := storage.CandleTable(pair, interval)
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ident(table))); err != nil {
		return fmt.Errorf("drop candle table %s: %w", table, err)
	}
	return nil
}

// InsertCandles appends candles with COPY inside a single transaction.
func (s *CandleStore) InsertCandles(ctx context.Context, pair, interval string, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		if c == nil {
			return storage.ErrInvalidInput
		}
		rows = append(rows, []any{
			c.Open, c.Close, c.High, c.Low, c.Volume, c.TradeID, c.StartTime, c.EndTime,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	table := storage.CandleTable(pair, interval)
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, candleColumns, pgx.CopyFromRows(rows))
	if err != nil {
		if isUndefinedTableError(err) {
			return fmt.Errorf("insert candles into %s: %w", table, storage.ErrNotFound)
		}
		return fmt.Errorf("copy candles into %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy candles into %s: wrote %d of %d rows", table, n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetCandles returns all candles in insertion order.
func (s *CandleStore) GetCandles(ctx context.Context, pair, interval string) ([]*domain.Candle, error) {
	table := storage.CandleTable(pair, interval)
	query := fmt.Sprintf(`
		SELECT open, close, high, low, volume, trade_id, start_time, end_time
		FROM %s
		ORDER BY id ASC
	`, ident(table))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, fmt.Errorf("get candles from %s: %w", table, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get candles from %s: %w", table, err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Open, &c.Close, &c.High, &c.Low, &c.Volume, &c.TradeID, &c.StartTime, &c.EndTime); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		if isUndefinedTableError(err) {
			return nil, fmt.Errorf("get candles from %s: %w", table, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
