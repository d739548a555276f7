package clickhouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using one MergeTree table per (pair, interval).
// Rows carry an insertion sequence so reads return candles in write order.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
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
			seq         UInt64,
			open        Float64,
			close       Float64,
			high        Float64,
			low         Float64,
			volume      Float64,
			trade_id    Int64,
			start_time  Int64,
			end_time    Int64
		) ENGINE = MergeTree()
		ORDER BY seq
		SETTINGS index_granularity = 8192
	`, quoteIdent(table))

	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create candle table %s: %w", table, err)
	}
	return nil
}

// DropCandleTable removes the candle table if it exists.
func (s *CandleStore) DropCandleTable(ctx context.Context, pair, interval string) error {
	table := storage.CandleTable(pair, interval)
	if err := s.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(table))); err != nil {
		return fmt.Errorf("drop candle table %s: %w", table, err)
	}
	return nil
}

// InsertCandles appends candles as a single block. ClickHouse applies a block atomically.
func (s *CandleStore) InsertCandles(ctx context.Context, pair, interval string, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c == nil {
			return storage.ErrInvalidInput
		}
	}

	table := storage.CandleTable(pair, interval)

	next, err := s.nextSeq(ctx, table)
	if err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			seq, open, close, high, low, volume, trade_id, start_time, end_time
		)
	`, quoteIdent(table)))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, c := range candles {
		err = batch.Append(
			next+uint64(i),
			c.Open, c.Close, c.High, c.Low, c.Volume,
			c.TradeID, c.StartTime, c.EndTime,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetCandles returns all candles in insertion order.
func (s *CandleStore) GetCandles(ctx context.Context, pair, interval string) ([]*domain.Candle, error) {
	table := storage.CandleTable(pair, interval)

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("get candles from %s: %w", table, storage.ErrNotFound)
	}

	query := fmt.Sprintf(`
		SELECT open, close, high, low, volume, trade_id, start_time, end_time
		FROM %s
		ORDER BY seq ASC
	`, quoteIdent(table))

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// nextSeq returns the sequence number for the next appended row.
func (s *CandleStore) nextSeq(ctx context.Context, table string) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, fmt.Sprintf(`SELECT count() FROM %s`, quoteIdent(table))).Scan(&count)
	if err != nil {
		if isUnknownTableError(err) {
			return 0, fmt.Errorf("insert candles into %s: %w", table, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("count candles in %s: %w", table, err)
	}
	return count, nil
}

// tableExists checks system.tables in the current database.
func (s *CandleStore) tableExists(ctx context.Context, table string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// ClickHouse server error codes
const (
	chErrUnknownTable = 60 // UNKNOWN_TABLE
)

// isUnknownTableError checks if the server reported a missing table.
func isUnknownTableError(err error) bool {
	var exc *clickhouse.Exception
	if errors.As(err, &exc) {
		return exc.Code == chErrUnknownTable
	}
	return false
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.Open, &c.Close, &c.High, &c.Low, &c.Volume,
			&c.TradeID, &c.StartTime, &c.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
