// Package candles turns ordered trade sequences into fixed-interval OHLCV candles.
package candles

import (
	"trade-candle-lab/internal/domain"
)

// Build groups remainder followed by trades into candles of at most durationMs span.
//
// A trade joins the open bucket while trade.Timestamp - bucket[0].Timestamp < durationMs.
// The last bucket is never closed: it is returned as the new remainder and must be
// passed back in with the next chunk of the same sequence. Inputs must be in
// ascending trade_id order; Build does not sort.
//
// The returned remainder never aliases the input slices.
func Build(durationMs int64, remainder, trades []*domain.Trade) ([]*domain.Candle, []*domain.Trade) {
	total := len(remainder) + len(trades)
	if total == 0 {
		return nil, nil
	}

	seq := make([]*domain.Trade, 0, total)
	seq = append(seq, remainder...)
	seq = append(seq, trades...)

	var candles []*domain.Candle
	start := 0
	for i := 1; i < len(seq); i++ {
		if seq[i].Timestamp-seq[start].Timestamp < durationMs {
			continue
		}
		candles = append(candles, MakeCandle(seq[start:i]))
		start = i
	}

	next := make([]*domain.Trade, len(seq)-start)
	copy(next, seq[start:])

	return candles, next
}

// MakeCandle folds a non-empty bucket of trades into a candle.
// Returns nil for an empty bucket.
func MakeCandle(bucket []*domain.Trade) *domain.Candle {
	if len(bucket) == 0 {
		return nil
	}

	first := bucket[0]
	last := bucket[len(bucket)-1]

	c := &domain.Candle{
		Open:      first.Price,
		Close:     last.Price,
		High:      first.Price,
		Low:       first.Price,
		TradeID:   last.TradeID,
		StartTime: first.Timestamp,
		EndTime:   last.Timestamp,
	}

	for _, t := range bucket {
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Volume += t.Quantity
	}

	return c
}
