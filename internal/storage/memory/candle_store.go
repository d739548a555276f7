package memory

import (
	"context"
	"sync"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu     sync.RWMutex
	tables map[string][]*domain.Candle // keyed by storage.CandleTable(pair, interval)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		tables: make(map[string][]*domain.Candle),
	}
}

// EnsureCandleTable creates the candle table if absent.
func (s *CandleStore) EnsureCandleTable(_ context.Context, pair, interval string) error {
	if pair == "" || interval == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := storage.CandleTable(pair, interval)
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = []*domain.Candle{}
	}
	return nil
}

// DropCandleTable removes the candle table.
func (s *CandleStore) DropCandleTable(_ context.Context, pair, interval string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, storage.CandleTable(pair, interval))
	return nil
}

// InsertCandles appends candles to an existing table.
func (s *CandleStore) InsertCandles(_ context.Context, pair, interval string, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := storage.CandleTable(pair, interval)
	rows, ok := s.tables[name]
	if !ok {
		return storage.ErrNotFound
	}

	for _, c := range candles {
		if c == nil {
			return storage.ErrInvalidInput
		}
	}
	for _, c := range candles {
		copy := *c
		rows = append(rows, &copy)
	}
	s.tables[name] = rows
	return nil
}

// GetCandles returns all candles in insertion order.
func (s *CandleStore) GetCandles(_ context.Context, pair, interval string) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[storage.CandleTable(pair, interval)]
	if !ok {
		return nil, storage.ErrNotFound
	}

	result := make([]*domain.Candle, 0, len(rows))
	for _, c := range rows {
		copy := *c
		result = append(result, &copy)
	}
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
