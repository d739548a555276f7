package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/observability"
	"trade-candle-lab/internal/storage"
)

// Default importer configuration values.
const (
	DefaultBatchSize       = 1000
	DefaultMaxRetries      = 8
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
)

// ErrRetriesExhausted is returned when a fetch keeps timing out past the retry budget.
var ErrRetriesExhausted = errors.New("fetch retries exhausted")

// RetryPolicy bounds the exponential backoff applied to source timeouts.
type RetryPolicy struct {
	MaxRetries      int           // retries after the first attempt
	InitialInterval time.Duration // first wait
	MaxInterval     time.Duration // cap on a single wait
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Importer brings a pair's local trade table up to date with a TradeSource.
// Runs for the same pair must not overlap.
type Importer struct {
	source    TradeSource
	store     storage.TradeStore
	batchSize int
	retry     RetryPolicy
	logger    *slog.Logger
}

// ImporterOptions contains configuration for creating an Importer.
type ImporterOptions struct {
	Source    TradeSource
	Store     storage.TradeStore
	BatchSize int          // default DefaultBatchSize
	Retry     RetryPolicy  // zero value means DefaultRetryPolicy()
	Logger    *slog.Logger // default slog.Default()
}

// ImportResult summarizes one ImportPair run.
type ImportResult struct {
	Pair        string
	StartCursor int64 // first trade id requested
	NextCursor  int64 // first trade id the next run will request
	Batches     int   // non-empty batches persisted
	Fetched     int
	Imported    int // newly stored rows
	Duplicates  int // fetched rows already present
	Retries     int
	Duration    time.Duration
}

// NewImporter creates a new importer.
func NewImporter(opts ImporterOptions) *Importer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = DefaultInitialInterval
	}
	if retry.MaxInterval < retry.InitialInterval {
		retry.MaxInterval = retry.InitialInterval
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Importer{
		source:    opts.Source,
		store:     opts.Store,
		batchSize: batchSize,
		retry:     retry,
		logger:    logger,
	}
}

// ImportPair fetches trades after the highest stored trade id until the source
// returns a short batch. Each batch is persisted in its own transaction, so an
// aborted run keeps every earlier batch and the next run resumes after it.
//
// Source timeouts are retried at the same cursor with bounded exponential backoff.
// Any other source error, a storage error or an out-of-order batch ends the run;
// the partial result is returned with the error.
func (im *Importer) ImportPair(ctx context.Context, pair string) (*ImportResult, error) {
	if pair == "" {
		return nil, fmt.Errorf("%w: no pair provided", domain.ErrMissingInput)
	}

	start := time.Now()

	maxID, ok, err := im.store.MaxTradeID(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("read cursor for %s: %w", pair, err)
	}
	cursor := int64(1)
	if ok {
		cursor = maxID + 1
	}

	result := &ImportResult{
		Pair:        pair,
		StartCursor: cursor,
		NextCursor:  cursor,
	}
	defer func() {
		result.Duration = time.Since(start)
	}()

	log := im.logger.With("pair", pair)
	log.Info("import started", "cursor", cursor, "batch_size", im.batchSize)

	tableReady := false
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log.Debug("fetching", "cursor", cursor)
		observability.UpdateImportCursor(pair, cursor)

		batch, err := im.fetch(ctx, log, pair, cursor, result)
		if err != nil {
			log.Error("import failed", "cursor", cursor, "error", err)
			return result, err
		}
		result.Fetched += len(batch)

		if len(batch) == 0 {
			break
		}
		if err := ValidateBatchOrdering(batch, cursor); err != nil {
			return result, fmt.Errorf("batch at cursor %d: %w", cursor, err)
		}

		if !tableReady {
			if err := im.store.EnsureTradeTable(ctx, pair); err != nil {
				return result, fmt.Errorf("ensure trade table %s: %w", pair, err)
			}
			tableReady = true
		}

		log.Debug("persisting", "cursor", cursor, "trades", len(batch))
		inserted, err := im.store.InsertTrades(ctx, pair, batch)
		if err != nil {
			return result, fmt.Errorf("insert batch at cursor %d: %w", cursor, err)
		}

		result.Batches++
		result.Imported += inserted
		result.Duplicates += len(batch) - inserted
		result.NextCursor = batch[len(batch)-1].TradeID + 1
		observability.RecordBatchStored(inserted, len(batch)-inserted)

		if len(batch) < im.batchSize {
			break
		}
		cursor += int64(im.batchSize)
	}

	observability.UpdateImportCursor(pair, result.NextCursor)
	log.Info("import done",
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"batches", result.Batches,
		"retries", result.Retries,
		"next_cursor", result.NextCursor,
		"duration", time.Since(start),
	)

	return result, nil
}

// fetch requests one batch, retrying timeouts per the retry policy.
func (im *Importer) fetch(ctx context.Context, log *slog.Logger, pair string, cursor int64, result *ImportResult) ([]*domain.Trade, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = im.retry.InitialInterval
	b.MaxInterval = im.retry.MaxInterval
	b.MaxElapsedTime = 0 // bounded by retry count, not elapsed time

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(im.retry.MaxRetries)), ctx)

	var batch []*domain.Trade
	operation := func() error {
		started := time.Now()
		trades, err := im.source.Fetch(ctx, pair, cursor, im.batchSize)
		switch {
		case err == nil:
			observability.RecordFetch("ok", time.Since(started).Seconds(), len(trades))
			batch = trades
			return nil
		case errors.Is(err, ErrSourceTimeout):
			observability.RecordFetch("timeout", time.Since(started).Seconds(), 0)
			observability.RecordFetchError("timeout")
			return err
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		default:
			observability.RecordFetch("error", time.Since(started).Seconds(), 0)
			observability.RecordFetchError("source")
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		result.Retries++
		observability.RecordFetchRetry()
		log.Warn("fetch timed out, retrying", "cursor", cursor, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, ErrSourceTimeout) {
			return nil, fmt.Errorf("%w at cursor %d after %d retries: %w",
				ErrRetriesExhausted, cursor, im.retry.MaxRetries, err)
		}
		return nil, fmt.Errorf("fetch at cursor %d: %w", cursor, err)
	}
	return batch, nil
}
