package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"trade-candle-lab/internal/binance"
	"trade-candle-lab/internal/candles"
	"trade-candle-lab/internal/config"
	"trade-candle-lab/internal/domain"
	"trade-candle-lab/internal/ingestion"
	"trade-candle-lab/internal/logging"
	"trade-candle-lab/internal/observability"
	"trade-candle-lab/internal/storage"
	chstore "trade-candle-lab/internal/storage/clickhouse"
	"trade-candle-lab/internal/storage/memory"
	pgstore "trade-candle-lab/internal/storage/postgres"
	"trade-candle-lab/internal/verification"
)

const (
	actionImport  = "import"
	actionProcess = "process"
	actionVerify  = "verify"
)

// command is a parsed CLI invocation.
type command struct {
	action    string
	pair      string
	intervals []string
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	fs := flag.NewFlagSet("candles", flag.ContinueOnError)
	envFile := fs.String("env", "", "Path to .env file (default .env)")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n")
		fmt.Fprintf(fs.Output(), "  candles [flags] import <pair>\n")
		fmt.Fprintf(fs.Output(), "  candles [flags] process <pair> <intervals>   e.g. process BTCUSDT 5m,1h\n")
		fmt.Fprintf(fs.Output(), "  candles [flags] verify <pair> <intervals>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Bootstrap logger until LOG_LEVEL is known
	logger := logging.New(os.Stderr, slog.LevelInfo)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid LOG_LEVEL", "error", err)
		return 1
	}
	logger = logging.New(os.Stderr, level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return 1
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		fs.Usage()
		return 1
	}

	logger = logger.With("run_id", uuid.NewString(), "command", cmd.action)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(logger, cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	start := time.Now()
	err = run(ctx, logger, cfg, cmd)

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordRun(cmd.action, status, time.Since(start).Seconds())

	if err != nil {
		logger.Error("command failed", "error", err, "duration", time.Since(start))
		return 1
	}
	logger.Info("command finished", "duration", time.Since(start))
	return 0
}

// parseCommand validates positional arguments and normalizes the pair.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("%w: no action provided", domain.ErrMissingInput)
	}

	cmd := command{action: args[0]}
	switch cmd.action {
	case actionImport:
		if len(args) != 2 {
			return command{}, fmt.Errorf("%w: usage: import <pair>", domain.ErrMissingInput)
		}
	case actionProcess, actionVerify:
		if len(args) != 3 {
			return command{}, fmt.Errorf("%w: usage: %s <pair> <intervals>", domain.ErrMissingInput, cmd.action)
		}
		intervals, err := domain.ParseIntervalList(args[2])
		if err != nil {
			return command{}, err
		}
		cmd.intervals = intervals
	default:
		return command{}, fmt.Errorf("unknown action %q", cmd.action)
	}

	pair, err := domain.NormalizePair(args[1])
	if err != nil {
		return command{}, err
	}
	cmd.pair = pair

	return cmd, nil
}

// run opens the configured stores and executes cmd.
func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, cmd command) error {
	stores, err := openStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	switch cmd.action {
	case actionImport:
		return runImport(ctx, logger, cfg, stores.trades, cmd.pair)
	case actionProcess:
		return runProcess(ctx, logger, cfg, stores, cmd)
	case actionVerify:
		return runVerify(ctx, logger, cfg, stores, cmd)
	default:
		return fmt.Errorf("unknown action %q", cmd.action)
	}
}

func runImport(ctx context.Context, logger *slog.Logger, cfg *config.Config, trades storage.TradeStore, pair string) error {
	client := binance.NewHTTPClient(
		binance.WithBaseURL(cfg.BinanceAPIURL),
		binance.WithTimeout(cfg.FetchTimeout),
		binance.WithRateLimit(cfg.FetchRateLimit),
	)

	importer := ingestion.NewImporter(ingestion.ImporterOptions{
		Source:    ingestion.NewBinanceTradeSource(client),
		Store:     trades,
		BatchSize: cfg.ImportBatchSize,
		Retry: ingestion.RetryPolicy{
			MaxRetries:      cfg.FetchMaxRetries,
			InitialInterval: cfg.FetchRetryInitial,
			MaxInterval:     cfg.FetchRetryMax,
		},
		Logger: logger,
	})

	result, err := importer.ImportPair(ctx, pair)
	if result != nil {
		logger.Info("import summary",
			"pair", result.Pair,
			"start_cursor", result.StartCursor,
			"next_cursor", result.NextCursor,
			"imported", result.Imported,
			"duplicates", result.Duplicates,
			"retries", result.Retries,
		)
	}
	if err != nil {
		return err
	}
	observability.MarkImportSuccess(time.Now().Unix())
	return nil
}

func runProcess(ctx context.Context, logger *slog.Logger, cfg *config.Config, stores *storeSet, cmd command) error {
	processor := candles.NewProcessor(candles.ProcessorOptions{
		Trades:   stores.trades,
		Candles:  stores.candles,
		PageSize: cfg.ProcessPageSize,
		Logger:   logger,
	})

	result, err := processor.ProcessPair(ctx, cmd.pair, cmd.intervals)
	if result != nil {
		for token, n := range result.Candles {
			logger.Info("interval rebuilt", "pair", cmd.pair, "interval", token, "candles", n)
		}
	}
	if err != nil {
		return err
	}
	observability.MarkProcessSuccess(time.Now().Unix())
	return nil
}

func runVerify(ctx context.Context, logger *slog.Logger, cfg *config.Config, stores *storeSet, cmd command) error {
	verifier := verification.NewVerifier(stores.trades, stores.candles, cfg.ProcessPageSize)

	var errs []error
	for _, token := range cmd.intervals {
		report, err := verifier.VerifyInterval(ctx, cmd.pair, token)
		if report != nil {
			logger.Info("interval verified",
				"pair", cmd.pair,
				"interval", report.Interval,
				"stored", report.StoredCandles,
				"rebuilt", report.RebuiltCandles,
				"divergent", report.DivergentCandles,
			)
			for _, r := range report.Results {
				logger.Warn("candle diverges",
					"interval", report.Interval,
					"index", r.Index,
					"divergences", r.Divergences,
				)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// storeSet holds the opened storage backends.
type storeSet struct {
	trades  storage.TradeStore
	candles storage.CandleStore
	closers []func()
}

func (s *storeSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the trade and candle backends selected by cfg.
func openStores(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*storeSet, error) {
	s := &storeSet{}

	var pool *pgstore.Pool
	if cfg.Store == config.BackendPostgres || cfg.CandleStore == config.BackendPostgres {
		p, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		pool = p
		s.closers = append(s.closers, pool.Close)
		logger.Debug("connected to postgres")
	}

	switch cfg.Store {
	case config.BackendPostgres:
		s.trades = pgstore.NewTradeStore(pool)
	case config.BackendMemory:
		logger.Warn("using in-memory trade store, data is lost on exit")
		s.trades = memory.NewTradeStore()
	default:
		s.close()
		return nil, fmt.Errorf("unsupported trade store %q", cfg.Store)
	}

	switch cfg.CandleStore {
	case config.BackendPostgres:
		s.candles = pgstore.NewCandleStore(pool)
	case config.BackendClickHouse:
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.candles = chstore.NewCandleStore(conn)
		logger.Debug("connected to clickhouse")
	case config.BackendMemory:
		s.candles = memory.NewCandleStore()
	default:
		s.close()
		return nil, fmt.Errorf("unsupported candle store %q", cfg.CandleStore)
	}

	return s, nil
}

// startMetricsServer serves /metrics and /health in the background.
func startMetricsServer(logger *slog.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
