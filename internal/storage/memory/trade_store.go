package memory

import (
	"context"
	"sort"
	"sync"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	tables map[string]*tradeTable // keyed by pair
}

// tradeTable keeps rows both indexed by trade_id and sorted for scans.
type tradeTable struct {
	byID   map[int64]*domain.Trade
	sorted []*domain.Trade // trade_id ASC
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		tables: make(map[string]*tradeTable),
	}
}

// EnsureTradeTable creates the pair's table if absent.
func (s *TradeStore) EnsureTradeTable(_ context.Context, pair string) error {
	if pair == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensure(pair)
	return nil
}

func (s *TradeStore) ensure(pair string) *tradeTable {
	tbl, ok := s.tables[pair]
	if !ok {
		tbl = &tradeTable{byID: make(map[int64]*domain.Trade)}
		s.tables[pair] = tbl
	}
	return tbl
}

// InsertTrades adds a batch atomically, skipping trade_ids that already exist.
func (s *TradeStore) InsertTrades(_ context.Context, pair string, trades []*domain.Trade) (int, error) {
	if pair == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(trades) == 0 {
		return 0, nil
	}

	// Validate the whole batch before touching the table
	for _, t := range trades {
		if t == nil {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.ensure(pair)
	inserted := 0
	for _, t := range trades {
		if _, exists := tbl.byID[t.TradeID]; exists {
			continue
		}
		copy := *t
		copy.Pair = pair
		tbl.byID[t.TradeID] = &copy
		tbl.sorted = append(tbl.sorted, &copy)
		inserted++
	}

	if inserted > 0 {
		sort.Slice(tbl.sorted, func(i, j int) bool {
			return tbl.sorted[i].TradeID < tbl.sorted[j].TradeID
		})
	}

	return inserted, nil
}

// MaxTradeID returns the largest stored trade_id.
func (s *TradeStore) MaxTradeID(_ context.Context, pair string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[pair]
	if !ok || len(tbl.sorted) == 0 {
		return 0, false, nil
	}
	return tbl.sorted[len(tbl.sorted)-1].TradeID, true, nil
}

// ScanTrades returns a page of trades ordered by trade_id ASC.
func (s *TradeStore) ScanTrades(_ context.Context, pair string, offset, limit int) ([]*domain.Trade, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[pair]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if offset >= len(tbl.sorted) {
		return nil, nil
	}

	end := offset + limit
	if end > len(tbl.sorted) {
		end = len(tbl.sorted)
	}

	result := make([]*domain.Trade, 0, end-offset)
	for _, t := range tbl.sorted[offset:end] {
		copy := *t
		result = append(result, &copy)
	}
	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
