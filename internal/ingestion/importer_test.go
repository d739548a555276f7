package ingestion_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/ingestion"
	"trade-candle-lab/internal/ingestion/stub"
	"trade-candle-lab/internal/storage"
	"trade-candle-lab/internal/storage/memory"
)

const testPair = "BTCUSDT"

var fastRetry = ingestion.RetryPolicy{
	MaxRetries:      5,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeTrades(from, to int64) []*domain.Trade {
	var trades []*domain.Trade
	for id := from; id <= to; id++ {
		trades = append(trades, &domain.Trade{
			TradeID:   id,
			Timestamp: 1_700_000_000_000 + id*250,
			Price:     30000 + float64(id%17),
			Quantity:  0.001 * float64(id%5+1),
			Pair:      testPair,
		})
	}
	return trades
}

func seedStore(t *testing.T, store storage.TradeStore, trades []*domain.Trade) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureTradeTable(ctx, testPair))
	_, err := store.InsertTrades(ctx, testPair, trades)
	require.NoError(t, err)
}

func storedIDs(t *testing.T, store storage.TradeStore) []int64 {
	t.Helper()
	trades, err := store.ScanTrades(context.Background(), testPair, 0, 1_000_000)
	require.NoError(t, err)
	ids := make([]int64, len(trades))
	for i, tr := range trades {
		ids[i] = tr.TradeID
	}
	return ids
}

func idRange(from, to int64) []int64 {
	var ids []int64
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

func newImporter(source ingestion.TradeSource, store storage.TradeStore, batchSize int) *ingestion.Importer {
	return ingestion.NewImporter(ingestion.ImporterOptions{
		Source:    source,
		Store:     store,
		BatchSize: batchSize,
		Retry:     fastRetry,
		Logger:    quietLogger(),
	})
}

func TestImporter_ResumesFromStoredMax(t *testing.T) {
	store := memory.NewTradeStore()
	seedStore(t, store, makeTrades(1, 500))
	source := stub.NewStubTradeSource(makeTrades(1, 1000))

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	require.NoError(t, err)

	requests := source.Requests()
	require.NotEmpty(t, requests)
	assert.Equal(t, int64(501), requests[0])
	assert.Equal(t, []int64{501, 601, 701, 801, 901, 1001}, requests)

	assert.Equal(t, int64(501), result.StartCursor)
	assert.Equal(t, int64(1001), result.NextCursor)
	assert.Equal(t, 500, result.Imported)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, 5, result.Batches)
	assert.Equal(t, idRange(1, 1000), storedIDs(t, store))
}

func TestImporter_FreshPairStartsAtOne(t *testing.T) {
	store := memory.NewTradeStore()
	source := stub.NewStubTradeSource(makeTrades(1, 250))

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	require.NoError(t, err)

	// Short third batch ends the run without another request
	assert.Equal(t, []int64{1, 101, 201}, source.Requests())
	assert.Equal(t, 250, result.Imported)
	assert.Equal(t, idRange(1, 250), storedIDs(t, store))
}

func TestImporter_NoNewTrades(t *testing.T) {
	store := memory.NewTradeStore()
	seedStore(t, store, makeTrades(1, 300))
	source := stub.NewStubTradeSource(makeTrades(1, 300))

	importer := newImporter(source, store, 100)

	result, err := importer.ImportPair(context.Background(), testPair)
	require.NoError(t, err)
	assert.Equal(t, []int64{301}, source.Requests())
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, int64(301), result.NextCursor)
	assert.Len(t, storedIDs(t, store), 300)
}

func TestImporter_EmptySourceCreatesNothing(t *testing.T) {
	store := memory.NewTradeStore()
	source := stub.NewStubTradeSource(nil)

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)

	_, err = store.ScanTrades(context.Background(), testPair, 0, 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImporter_RetriesTimeoutAtSameCursor(t *testing.T) {
	store := memory.NewTradeStore()
	source := stub.NewStubTradeSource(makeTrades(1, 300)).FailWithTimeout(101, 3)

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 101, 101, 101, 101, 201, 301}, source.Requests())
	assert.Equal(t, 3, result.Retries)
	assert.Equal(t, 300, result.Imported)
	assert.Equal(t, idRange(1, 300), storedIDs(t, store))
}

func TestImporter_RetriesExhausted(t *testing.T) {
	store := memory.NewTradeStore()
	source := stub.NewStubTradeSource(makeTrades(1, 300)).FailWithTimeout(101, 100)

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestion.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ingestion.ErrSourceTimeout)

	// First attempt plus MaxRetries retries at the failing cursor
	assert.Equal(t, []int64{1, 101, 101, 101, 101, 101, 101}, source.Requests())
	assert.Equal(t, fastRetry.MaxRetries, result.Retries)

	// Earlier batch stays persisted
	assert.Equal(t, 100, result.Imported)
	assert.Equal(t, idRange(1, 100), storedIDs(t, store))
}

func TestImporter_PermanentErrorAborts(t *testing.T) {
	store := memory.NewTradeStore()
	errBoom := errors.New("exchange rejected request")
	source := stub.NewStubTradeSource(makeTrades(1, 400)).FailWithError(201, errBoom)

	result, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ingestion.ErrRetriesExhausted)

	// No retry of a non-timeout error
	assert.Equal(t, []int64{1, 101, 201}, source.Requests())
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, idRange(1, 200), storedIDs(t, store))

	// A later run resumes after the persisted batches
	retry := stub.NewStubTradeSource(makeTrades(1, 400))
	result, err = newImporter(retry, store, 100).ImportPair(context.Background(), testPair)
	require.NoError(t, err)
	assert.Equal(t, int64(201), result.StartCursor)
	assert.Equal(t, 200, result.Imported)
	assert.Equal(t, idRange(1, 400), storedIDs(t, store))
}

func TestImporter_MissingPair(t *testing.T) {
	source := stub.NewStubTradeSource(makeTrades(1, 10))

	_, err := newImporter(source, memory.NewTradeStore(), 100).ImportPair(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingInput)
	assert.Empty(t, source.Requests())
}

// reversedSource returns the requested window in descending order.
type reversedSource struct {
	inner ingestion.TradeSource
}

func (s *reversedSource) Fetch(ctx context.Context, pair string, fromID int64, limit int) ([]*domain.Trade, error) {
	trades, err := s.inner.Fetch(ctx, pair, fromID, limit)
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, err
}

func TestImporter_RejectsUnorderedBatch(t *testing.T) {
	store := memory.NewTradeStore()
	source := &reversedSource{inner: stub.NewStubTradeSource(makeTrades(1, 50))}

	_, err := newImporter(source, store, 100).ImportPair(context.Background(), testPair)
	assert.ErrorIs(t, err, ingestion.ErrInvalidOrdering)

	_, ok, err := store.MaxTradeID(context.Background(), testPair)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImporter_CanceledContext(t *testing.T) {
	store := memory.NewTradeStore()
	source := stub.NewStubTradeSource(makeTrades(1, 50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newImporter(source, store, 100).ImportPair(ctx, testPair)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, source.Requests())
}

func TestNewImporter_DefaultRetryPolicy(t *testing.T) {
	policy := ingestion.DefaultRetryPolicy()
	assert.Equal(t, ingestion.DefaultMaxRetries, policy.MaxRetries)
	assert.Equal(t, ingestion.DefaultInitialInterval, policy.InitialInterval)
	assert.Equal(t, ingestion.DefaultMaxInterval, policy.MaxInterval)
}
