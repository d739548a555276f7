// Package config loads runtime configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backend names.
const (
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
)

// MaxImportBatchSize is the largest batch the Binance aggTrades endpoint serves.
const MaxImportBatchSize = 1000

// Config holds all runtime settings.
type Config struct {
	Store       string `env:"STORE" envDefault:"postgres"`
	CandleStore string `env:"CANDLE_STORE"` // empty means same as Store

	PostgresDSN   string `env:"POSTGRES_DSN"`
	ClickHouseDSN string `env:"CLICKHOUSE_DSN"`

	BinanceAPIURL string `env:"BINANCE_API_URL" envDefault:"https://api.binance.com"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ImportBatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"1000"`
	ProcessPageSize int `env:"PROCESS_PAGE_SIZE" envDefault:"100000"`

	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	FetchRateLimit    float64       `env:"FETCH_RATE_LIMIT" envDefault:"10"`
	FetchMaxRetries   int           `env:"FETCH_MAX_RETRIES" envDefault:"8"`
	FetchRetryInitial time.Duration `env:"FETCH_RETRY_INITIAL" envDefault:"500ms"`
	FetchRetryMax     time.Duration `env:"FETCH_RETRY_MAX" envDefault:"30s"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads envFile (if present) into the process environment and parses Config.
// An empty envFile means ".env". A missing file is not an error; variables already
// set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.CandleStore == "" {
		cfg.CandleStore = cfg.Store
	}

	return cfg, nil
}

// Validate checks backend selection and numeric bounds.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %s or %s, got %q", BackendPostgres, BackendMemory, c.Store))
	}

	switch c.CandleStore {
	case BackendPostgres, BackendMemory, BackendClickHouse:
	default:
		errs = append(errs, fmt.Errorf("CANDLE_STORE must be %s, %s or %s, got %q",
			BackendPostgres, BackendClickHouse, BackendMemory, c.CandleStore))
	}

	if (c.Store == BackendPostgres || c.CandleStore == BackendPostgres) && c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
	}
	if c.CandleStore == BackendClickHouse && c.ClickHouseDSN == "" {
		errs = append(errs, errors.New("CLICKHOUSE_DSN is required for the clickhouse backend"))
	}

	if c.ImportBatchSize <= 0 || c.ImportBatchSize > MaxImportBatchSize {
		errs = append(errs, fmt.Errorf("IMPORT_BATCH_SIZE must be in 1..%d, got %d", MaxImportBatchSize, c.ImportBatchSize))
	}
	if c.ProcessPageSize <= 0 {
		errs = append(errs, fmt.Errorf("PROCESS_PAGE_SIZE must be positive, got %d", c.ProcessPageSize))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout))
	}
	if c.FetchMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("FETCH_MAX_RETRIES must not be negative, got %d", c.FetchMaxRetries))
	}
	if c.FetchRetryInitial <= 0 || c.FetchRetryMax < c.FetchRetryInitial {
		errs = append(errs, fmt.Errorf("FETCH_RETRY_INITIAL (%s) must be positive and not above FETCH_RETRY_MAX (%s)",
			c.FetchRetryInitial, c.FetchRetryMax))
	}

	return errors.Join(errs...)
}
