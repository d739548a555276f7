package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trade-candle-lab/internal/binance"
	"trade-candle-lab/internal/domain"
)

// AggTradeClient fetches Binance aggregate trades.
type AggTradeClient interface {
	GetAggTrades(ctx context.Context, symbol string, fromID int64, limit int) ([]binance.AggTrade, error)
}

// BinanceTradeSource adapts the Binance aggTrades endpoint to TradeSource.
// Aggregate trade ids serve as trade ids.
type BinanceTradeSource struct {
	client AggTradeClient
}

// NewBinanceTradeSource creates a new Binance trade source.
func NewBinanceTradeSource(client AggTradeClient) *BinanceTradeSource {
	return &BinanceTradeSource{client: client}
}

// Compile-time interface check.
var _ TradeSource = (*BinanceTradeSource)(nil)

// Fetch returns up to limit trades with id >= fromID.
func (s *BinanceTradeSource) Fetch(ctx context.Context, pair string, fromID int64, limit int) ([]*domain.Trade, error) {
	raw, err := s.client.GetAggTrades(ctx, pair, fromID, limit)
	if err != nil {
		if errors.Is(err, binance.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", ErrSourceTimeout, err)
		}
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(raw))
	for _, at := range raw {
		t, err := convertAggTrade(pair, at)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// convertAggTrade parses Binance decimal strings into a Trade.
func convertAggTrade(pair string, at binance.AggTrade) (*domain.Trade, error) {
	price, err := decimal.NewFromString(at.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price of trade %d: %w", at.ID, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("trade %d: non-positive price %s", at.ID, at.Price)
	}

	qty, err := decimal.NewFromString(at.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse quantity of trade %d: %w", at.ID, err)
	}
	if qty.IsNegative() {
		return nil, fmt.Errorf("trade %d: negative quantity %s", at.ID, at.Quantity)
	}

	return &domain.Trade{
		TradeID:   at.ID,
		Timestamp: at.Time,
		Price:     price.InexactFloat64(),
		Quantity:  qty.InexactFloat64(),
		Pair:      pair,
	}, nil
}
