package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using one PostgreSQL table per pair.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// EnsureTradeTable creates the pair's trade table and its unique trade_id index.
func (s *TradeStore) EnsureTradeTable(ctx context.Context, pair string) error {
	if pair == "" {
		return storage.ErrInvalidInput
	}

	table := storage.TradeTable(pair)

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id            BIGSERIAL PRIMARY KEY,
			trade_id      BIGINT NOT NULL,
			timestamp_ms  BIGINT NOT NULL,
			price         DOUBLE PRECISION NOT NULL,
			quantity      DOUBLE PRECISION NOT NULL
		)
	`, ident(table))
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create trade table %s: %w", table, err)
	}

	createIndex := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (trade_id)`,
		ident(table+"_trade_id"), ident(table),
	)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create trade_id index on %s: %w", table, err)
	}

	return nil
}

// InsertTrades adds a batch in one transaction. Existing trade_ids are skipped.
func (s *TradeStore) InsertTrades(ctx context.Context, pair string, trades []*domain.Trade) (int, error) {
	if pair == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (trade_id, timestamp_ms, price, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trade_id) DO NOTHING
	`, ident(storage.TradeTable(pair)))

	inserted := 0
	for _, t := range trades {
		if t == nil {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, t.TradeID, t.Timestamp, t.Price, t.Quantity)
		if err != nil {
			if isUndefinedTableError(err) {
				return 0, fmt.Errorf("insert trades into %s: %w", pair, storage.ErrNotFound)
			}
			return 0, fmt.Errorf("insert trade %d: %w", t.TradeID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// MaxTradeID returns the largest stored trade_id, ok=false for an absent or empty table.
func (s *TradeStore) MaxTradeID(ctx context.Context, pair string) (int64, bool, error) {
	query := fmt.Sprintf(`SELECT MAX(trade_id) FROM %s`, ident(storage.TradeTable(pair)))

	var maxID *int64
	if err := s.pool.QueryRow(ctx, query).Scan(&maxID); err != nil {
		if isUndefinedTableError(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get max trade id: %w", err)
	}
	if maxID == nil {
		return 0, false, nil
	}
	return *maxID, true, nil
}

// ScanTrades returns a page of trades ordered by trade_id ASC.
func (s *TradeStore) ScanTrades(ctx context.Context, pair string, offset, limit int) ([]*domain.Trade, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		SELECT trade_id, timestamp_ms, price, quantity
		FROM %s
		ORDER BY trade_id ASC
		LIMIT $1 OFFSET $2
	`, ident(storage.TradeTable(pair)))

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, fmt.Errorf("scan trades for %s: %w", pair, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows, pair)
	if err != nil && isUndefinedTableError(err) {
		return nil, fmt.Errorf("scan trades for %s: %w", pair, storage.ErrNotFound)
	}
	return trades, err
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows, pair string) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t := domain.Trade{Pair: pair}
		if err := rows.Scan(&t.TradeID, &t.Timestamp, &t.Price, &t.Quantity); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
