package candles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/observability"
	"trade-candle-lab/internal/storage"
)

// DefaultPageSize is the number of trades read per page.
const DefaultPageSize = 100000

// Processor rebuilds candle tables from a pair's stored trades.
type Processor struct {
	trades   storage.TradeStore
	candles  storage.CandleStore
	pageSize int
	logger   *slog.Logger
}

// ProcessorOptions contains configuration for creating a Processor.
type ProcessorOptions struct {
	Trades   storage.TradeStore
	Candles  storage.CandleStore
	PageSize int          // default DefaultPageSize
	Logger   *slog.Logger // default slog.Default()
}

// ProcessResult summarizes one ProcessPair run.
type ProcessResult struct {
	Pair          string
	Pages         int
	TradesScanned int
	Candles       map[string]int   // candles written, keyed by canonical interval token
	Failed        map[string]error // failed intervals, keyed by the token as given
	Duration      time.Duration
}

// remainderKey identifies the open bucket carried between pages.
type remainderKey struct {
	pair     string
	interval string
}

// intervalRun is the per-interval state of one run.
type intervalRun struct {
	interval domain.Interval
	built    []*domain.Candle
	next     []*domain.Trade
}

// NewProcessor creates a new candle processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		trades:   opts.Trades,
		candles:  opts.Candles,
		pageSize: pageSize,
		logger:   logger,
	}
}

// ProcessPair drops and rebuilds the candle table of every requested interval
// from a single paged pass over the pair's trades.
//
// Invalid tokens and candle storage failures are recorded per interval and do not
// stop the other intervals; the returned error joins them in token order.
// An interval whose insert fails has its partial table dropped. Trade scan failures
// and ordering violations abort the run.
// The trailing open bucket of each interval is discarded.
func (p *Processor) ProcessPair(ctx context.Context, pair string, tokens []string) (*ProcessResult, error) {
	if pair == "" {
		return nil, fmt.Errorf("%w: no pair provided", domain.ErrMissingInput)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no intervals provided", domain.ErrMissingInput)
	}

	start := time.Now()
	result := &ProcessResult{
		Pair:    pair,
		Candles: make(map[string]int),
		Failed:  make(map[string]error),
	}

	// Parse tokens; duplicates of the same canonical interval run once
	var runs []*intervalRun
	seen := make(map[string]bool)
	for _, token := range tokens {
		iv, err := domain.ParseInterval(token)
		if err != nil {
			p.fail(result, token, err)
			continue
		}
		if seen[iv.Token] {
			continue
		}
		seen[iv.Token] = true
		runs = append(runs, &intervalRun{interval: iv})
	}
	if len(runs) == 0 {
		result.Duration = time.Since(start)
		return result, p.joinFailures(result)
	}

	// Refuse to drop candle tables when there is nothing to rebuild from
	_, ok, err := p.trades.MaxTradeID(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("read max trade id for %s: %w", pair, err)
	}
	if !ok {
		return nil, fmt.Errorf("trades for %s: %w", pair, storage.ErrNotFound)
	}

	runs = p.resetTables(ctx, result, runs)

	remainders := make(map[remainderKey][]*domain.Trade, len(runs))
	var last *domain.Trade
	offset := 0

	for len(runs) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := p.trades.ScanTrades(ctx, pair, offset, p.pageSize)
		if err != nil {
			return result, fmt.Errorf("scan trades %s at offset %d: %w", pair, offset, err)
		}
		if err := ValidateTradeOrdering(last, page); err != nil {
			return result, err
		}
		if len(page) > 0 {
			last = page[len(page)-1]
		}

		result.Pages++
		result.TradesScanned += len(page)
		offset += len(page)
		observability.RecordPageScanned(len(page))

		// Builder calls are pure; fan out, then write sequentially
		g, gctx := errgroup.WithContext(ctx)
		for _, run := range runs {
			prior := remainders[remainderKey{pair, run.interval.Token}]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				run.built, run.next = Build(run.interval.Millis, prior, page)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		active := runs[:0]
		for _, run := range runs {
			key := remainderKey{pair, run.interval.Token}
			if err := p.candles.InsertCandles(ctx, pair, run.interval.Token, run.built); err != nil {
				p.fail(result, run.interval.Token, fmt.Errorf("insert candles: %w", err))
				delete(remainders, key)
				p.dropPartial(ctx, pair, run.interval.Token)
				continue
			}
			remainders[key] = run.next
			result.Candles[run.interval.Token] += len(run.built)
			observability.RecordCandlesWritten(run.interval.Token, len(run.built))
			run.built = nil
			active = append(active, run)
		}
		runs = active

		p.logger.Debug("page processed",
			"pair", pair,
			"page", result.Pages,
			"trades", len(page),
			"intervals", len(runs),
		)

		if len(page) < p.pageSize {
			break
		}
	}

	for key, rem := range remainders {
		p.logger.Debug("discarding open candle",
			"pair", key.pair,
			"interval", key.interval,
			"trades", len(rem),
		)
	}

	result.Duration = time.Since(start)
	p.logger.Info("candles rebuilt",
		"pair", pair,
		"pages", result.Pages,
		"trades", result.TradesScanned,
		"candles", result.Candles,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)

	return result, p.joinFailures(result)
}

// resetTables drops and recreates each interval's candle table.
// Returns the intervals whose tables are ready.
func (p *Processor) resetTables(ctx context.Context, result *ProcessResult, runs []*intervalRun) []*intervalRun {
	ready := runs[:0]
	for _, run := range runs {
		token := run.interval.Token
		if err := p.candles.DropCandleTable(ctx, result.Pair, token); err != nil {
			p.fail(result, token, err)
			continue
		}
		if err := p.candles.EnsureCandleTable(ctx, result.Pair, token); err != nil {
			p.fail(result, token, err)
			continue
		}
		result.Candles[token] = 0
		ready = append(ready, run)
	}
	return ready
}

// dropPartial removes a table left with candles from earlier pages only.
func (p *Processor) dropPartial(ctx context.Context, pair, token string) {
	if err := p.candles.DropCandleTable(ctx, pair, token); err != nil {
		p.logger.Warn("failed to drop partial candle table", "pair", pair, "interval", token, "error", err)
	}
}

func (p *Processor) fail(result *ProcessResult, token string, err error) {
	result.Failed[token] = err
	observability.RecordIntervalFailure(token)
	p.logger.Error("interval failed", "pair", result.Pair, "interval", token, "error", err)
}

func (p *Processor) joinFailures(result *ProcessResult) error {
	if len(result.Failed) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(result.Failed))
	for token := range result.Failed {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	errs := make([]error, 0, len(tokens))
	for _, token := range tokens {
		errs = append(errs, fmt.Errorf("interval %s: %w", token, result.Failed[token]))
	}
	return errors.Join(errs...)
}
