package candles

import (
	"errors"
	"fmt"

	"trade-candle-lab/internal/domain"
)

// ErrInvalidOrdering is returned when trades are not in ascending trade_id order
// or their timestamps go backwards.
var ErrInvalidOrdering = errors.New("trades are not in ascending order")

// ValidateTradeOrdering checks that page continues prev (nil for the first page)
// with strictly increasing trade ids and non-decreasing timestamps.
// Returns ErrInvalidOrdering if not.
func ValidateTradeOrdering(prev *domain.Trade, page []*domain.Trade) error {
	for _, t := range page {
		if prev != nil {
			if t.TradeID <= prev.TradeID {
				return fmt.Errorf("%w: trade_id %d follows %d", ErrInvalidOrdering, t.TradeID, prev.TradeID)
			}
			if t.Timestamp < prev.Timestamp {
				return fmt.Errorf("%w: trade %d timestamp %d precedes %d",
					ErrInvalidOrdering, t.TradeID, t.Timestamp, prev.Timestamp)
			}
		}
		prev = t
	}
	return nil
}
