// Package verification checks stored candle tables against a fresh rebuild from trades.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"trade-candle-lab/internal/candles"
	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// MaxReportedDivergences caps Report.Results.
const MaxReportedDivergences = 100

// ErrDivergence is returned when a stored table does not match its rebuild.
var ErrDivergence = errors.New("stored candles diverge from rebuild")

// FieldDivergence represents a mismatch between stored and rebuilt values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // rebuilt value
}

// CandleResult is one divergent candle position.
type CandleResult struct {
	Index       int            // position in the table
	Stored      *domain.Candle // nil when missing from the table
	Rebuilt     *domain.Candle // nil when the table has an extra row
	Divergences []FieldDivergence
}

// Report contains the verification result for one (pair, interval) table.
type Report struct {
	Pair             string
	Interval         string
	StoredCandles    int
	RebuiltCandles   int
	MatchedCandles   int
	DivergentCandles int            // includes missing and extra rows
	Results          []CandleResult // first MaxReportedDivergences divergences
}

// Match reports whether the stored table equals the rebuild.
func (r *Report) Match() bool {
	return r.DivergentCandles == 0 && r.StoredCandles == r.RebuiltCandles
}

// Verifier rebuilds candles in memory and compares them with a stored table.
type Verifier struct {
	trades   storage.TradeStore
	candles  storage.CandleStore
	pageSize int
}

// NewVerifier creates a new verifier. A non-positive pageSize means candles.DefaultPageSize.
func NewVerifier(trades storage.TradeStore, candleStore storage.CandleStore, pageSize int) *Verifier {
	if pageSize <= 0 {
		pageSize = candles.DefaultPageSize
	}
	return &Verifier{trades: trades, candles: candleStore, pageSize: pageSize}
}

// VerifyInterval compares the pair's stored candle table for token with the candles
// a full rebuild would write. The stored table is loaded whole; trades are paged.
// Returns ErrDivergence (with the report) on mismatch.
func (v *Verifier) VerifyInterval(ctx context.Context, pair, token string) (*Report, error) {
	iv, err := domain.ParseInterval(token)
	if err != nil {
		return nil, err
	}

	stored, err := v.candles.GetCandles(ctx, pair, iv.Token)
	if err != nil {
		return nil, fmt.Errorf("load candles %s %s: %w", pair, iv.Token, err)
	}

	report := &Report{
		Pair:          pair,
		Interval:      iv.Token,
		StoredCandles: len(stored),
	}

	var remainder []*domain.Trade
	var last *domain.Trade
	offset := 0
	idx := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := v.trades.ScanTrades(ctx, pair, offset, v.pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan trades %s at offset %d: %w", pair, offset, err)
		}
		if err := candles.ValidateTradeOrdering(last, page); err != nil {
			return nil, err
		}
		if len(page) > 0 {
			last = page[len(page)-1]
		}
		offset += len(page)

		var built []*domain.Candle
		built, remainder = candles.Build(iv.Millis, remainder, page)
		for _, c := range built {
			var s *domain.Candle
			if idx < len(stored) {
				s = stored[idx]
			}
			report.compare(idx, s, c)
			idx++
		}

		if len(page) < v.pageSize {
			break
		}
	}

	report.RebuiltCandles = idx
	for ; idx < len(stored); idx++ {
		report.compare(idx, stored[idx], nil)
	}

	if !report.Match() {
		return report, fmt.Errorf("%s %s: %d of %d candles: %w",
			pair, iv.Token, report.DivergentCandles, max(report.StoredCandles, report.RebuiltCandles), ErrDivergence)
	}
	return report, nil
}

// compare records the comparison of one position. Either side may be nil.
func (r *Report) compare(idx int, stored, rebuilt *domain.Candle) {
	var divergences []FieldDivergence
	switch {
	case stored == nil:
		divergences = []FieldDivergence{{Field: "Candle", Expected: nil, Actual: rebuilt.TradeID}}
	case rebuilt == nil:
		divergences = []FieldDivergence{{Field: "Candle", Expected: stored.TradeID, Actual: nil}}
	default:
		divergences = CompareCandles(stored, rebuilt)
	}

	if len(divergences) == 0 {
		r.MatchedCandles++
		return
	}

	r.DivergentCandles++
	if len(r.Results) < MaxReportedDivergences {
		r.Results = append(r.Results, CandleResult{
			Index:       idx,
			Stored:      stored,
			Rebuilt:     rebuilt,
			Divergences: divergences,
		})
	}
}

// CompareCandles compares two candles and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareCandles(stored, rebuilt *domain.Candle) []FieldDivergence {
	var divergences []FieldDivergence

	floats := []struct {
		field    string
		expected float64
		actual   float64
	}{
		{"Open", stored.Open, rebuilt.Open},
		{"Close", stored.Close, rebuilt.Close},
		{"High", stored.High, rebuilt.High},
		{"Low", stored.Low, rebuilt.Low},
		{"Volume", stored.Volume, rebuilt.Volume},
	}
	for _, f := range floats {
		if !floatEquals(f.expected, f.actual) {
			divergences = append(divergences, FieldDivergence{Field: f.field, Expected: f.expected, Actual: f.actual})
		}
	}

	ints := []struct {
		field    string
		expected int64
		actual   int64
	}{
		{"TradeID", stored.TradeID, rebuilt.TradeID},
		{"StartTime", stored.StartTime, rebuilt.StartTime},
		{"EndTime", stored.EndTime, rebuilt.EndTime},
	}
	for _, f := range ints {
		if f.expected != f.actual {
			divergences = append(divergences, FieldDivergence{Field: f.field, Expected: f.expected, Actual: f.actual})
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
