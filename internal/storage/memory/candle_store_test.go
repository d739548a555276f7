package memory

import (
	"context"
	"errors"
	"testing"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/storage"
)

func TestCandleStore_Lifecycle(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertCandles(ctx, "BTCUSDT", "5m", []*domain.Candle{{TradeID: 1}}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before table exists, got %v", err)
	}

	if err := store.EnsureCandleTable(ctx, "BTCUSDT", "5m"); err != nil {
		t.Fatalf("EnsureCandleTable failed: %v", err)
	}

	candles := []*domain.Candle{
		{Open: 1, Close: 2, High: 3, Low: 1, Volume: 5, TradeID: 10, StartTime: 0, EndTime: 100},
		{Open: 2, Close: 1, High: 2, Low: 0.5, Volume: 1, TradeID: 20, StartTime: 300, EndTime: 400},
	}
	if err := store.InsertCandles(ctx, "BTCUSDT", "5m", candles); err != nil {
		t.Fatalf("InsertCandles failed: %v", err)
	}
	if err := store.InsertCandles(ctx, "BTCUSDT", "5m", []*domain.Candle{{TradeID: 30}}); err != nil {
		t.Fatalf("InsertCandles failed: %v", err)
	}

	got, err := store.GetCandles(ctx, "BTCUSDT", "5m")
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(got))
	}
	for i, want := range []int64{10, 20, 30} {
		if got[i].TradeID != want {
			t.Errorf("Candle %d: expected trade id %d, got %d", i, want, got[i].TradeID)
		}
	}

	// Ensure on an existing table keeps rows
	if err := store.EnsureCandleTable(ctx, "BTCUSDT", "5m"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetCandles(ctx, "BTCUSDT", "5m")
	if len(got) != 3 {
		t.Errorf("Ensure must not truncate, got %d candles", len(got))
	}

	if err := store.DropCandleTable(ctx, "BTCUSDT", "5m"); err != nil {
		t.Fatalf("DropCandleTable failed: %v", err)
	}
	if _, err := store.GetCandles(ctx, "BTCUSDT", "5m"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after drop, got %v", err)
	}

	// Dropping twice is fine
	if err := store.DropCandleTable(ctx, "BTCUSDT", "5m"); err != nil {
		t.Errorf("Second drop failed: %v", err)
	}
}

func TestCandleStore_IntervalsIsolated(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	for _, iv := range []string{"5m", "1h"} {
		if err := store.EnsureCandleTable(ctx, "BTCUSDT", iv); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.InsertCandles(ctx, "BTCUSDT", "5m", []*domain.Candle{{TradeID: 1}, {TradeID: 2}}); err != nil {
		t.Fatal(err)
	}

	fiveMin, _ := store.GetCandles(ctx, "BTCUSDT", "5m")
	hourly, _ := store.GetCandles(ctx, "BTCUSDT", "1h")
	if len(fiveMin) != 2 || len(hourly) != 0 {
		t.Errorf("Expected 2/0 candles, got %d/%d", len(fiveMin), len(hourly))
	}
}
