package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/ingestion"
)

// StubTradeSource serves fixed in-memory trades for testing.
// Timeouts and errors can be injected per requested cursor.
// Implements ingestion.TradeSource interface.
type StubTradeSource struct {
	mu       sync.Mutex
	trades   map[string][]*domain.Trade // keyed by pair, sorted by trade_id
	timeouts map[int64]int              // fromID -> remaining injected timeouts
	errs     map[int64]error            // fromID -> permanent error
	requests []int64
}

// NewStubTradeSource creates a new stub trade source with the given trades.
func NewStubTradeSource(trades []*domain.Trade) *StubTradeSource {
	byPair := make(map[string][]*domain.Trade)
	for _, t := range trades {
		byPair[t.Pair] = append(byPair[t.Pair], t)
	}
	for _, list := range byPair {
		sort.Slice(list, func(i, j int) bool {
			return list[i].TradeID < list[j].TradeID
		})
	}
	return &StubTradeSource{
		trades:   byPair,
		timeouts: make(map[int64]int),
		errs:     make(map[int64]error),
	}
}

// FailWithTimeout makes the next n requests at fromID time out.
func (s *StubTradeSource) FailWithTimeout(fromID int64, n int) *StubTradeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts[fromID] = n
	return s
}

// FailWithError makes every request at fromID fail with err.
func (s *StubTradeSource) FailWithError(fromID int64, err error) *StubTradeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[fromID] = err
	return s
}

// Requests returns the fromID of every Fetch call in order.
func (s *StubTradeSource) Requests() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.requests))
	copy(out, s.requests)
	return out
}

// Fetch returns copies of up to limit trades with trade_id >= fromID.
func (s *StubTradeSource) Fetch(ctx context.Context, pair string, fromID int64, limit int) ([]*domain.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, fromID)

	if n := s.timeouts[fromID]; n > 0 {
		s.timeouts[fromID] = n - 1
		return nil, fmt.Errorf("%w: injected at %d", ingestion.ErrSourceTimeout, fromID)
	}
	if err := s.errs[fromID]; err != nil {
		return nil, err
	}

	var result []*domain.Trade
	for _, t := range s.trades[pair] {
		if t.TradeID < fromID {
			continue
		}
		if len(result) == limit {
			break
		}
		copy := *t
		result = append(result, &copy)
	}
	return result, nil
}

var _ ingestion.TradeSource = (*StubTradeSource)(nil)
