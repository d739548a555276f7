package ingestion

import (
	"errors"
	"fmt"

	"trade-candle-lab/internal/domain"
)

// ErrInvalidOrdering is returned when a fetched batch is not in ascending trade_id order.
var ErrInvalidOrdering = errors.New("trades are not in ascending trade_id order")

// ValidateBatchOrdering checks that batch ids are strictly increasing and not below fromID.
// Returns ErrInvalidOrdering if not.
func ValidateBatchOrdering(batch []*domain.Trade, fromID int64) error {
	prev := fromID - 1
	for _, t := range batch {
		if t == nil {
			return fmt.Errorf("%w: nil trade", ErrInvalidOrdering)
		}
		if t.TradeID <= prev {
			return fmt.Errorf("%w: trade_id %d after %d", ErrInvalidOrdering, t.TradeID, prev)
		}
		prev = t.TradeID
	}
	return nil
}
