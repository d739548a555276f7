// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Import metrics
	TradesFetched    prometheus.Counter
	TradesStored     prometheus.Counter
	TradesDuplicate  prometheus.Counter
	BatchesProcessed prometheus.Counter
	FetchRetries     prometheus.Counter
	FetchErrors      *prometheus.CounterVec
	ImportCursor     *prometheus.GaugeVec

	// Latency metrics
	FetchLatency *prometheus.HistogramVec

	// Candle processing metrics
	PagesScanned     prometheus.Counter
	TradesScanned    prometheus.Counter
	CandlesWritten   *prometheus.CounterVec
	IntervalFailures *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulImport  prometheus.Gauge
	LastSuccessfulProcess prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "trade_candle_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Import metrics
		TradesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "trades_fetched_total",
			Help:      "Total number of trades received from the data source",
		}),
		TradesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "trades_stored_total",
			Help:      "Total number of trades newly stored to the trade table",
		}),
		TradesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "trades_duplicate_total",
			Help:      "Total number of fetched trades skipped by the unique trade_id index",
		}),
		BatchesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batches_processed_total",
			Help:      "Total number of fetched batches persisted",
		}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "fetch_retries_total",
			Help:      "Total number of fetch retries after a source timeout",
		}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "fetch_errors_total",
			Help:      "Total number of fetch errors by kind",
		}, []string{"kind"}),
		ImportCursor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "cursor",
			Help:      "Next trade id to request per pair",
		}, []string{"pair"}),

		// Latency metrics
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_latency_seconds",
			Help:      "Data source fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),

		// Candle processing metrics
		PagesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "pages_scanned_total",
			Help:      "Total number of trade pages read from the trade table",
		}),
		TradesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "trades_scanned_total",
			Help:      "Total number of trades read from the trade table",
		}),
		CandlesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "candles_written_total",
			Help:      "Total number of closed candles written by interval",
		}, []string{"interval"}),
		IntervalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "interval_failures_total",
			Help:      "Total number of intervals that failed during processing",
		}, []string{"interval"}),

		// Run metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "runs_total",
			Help:      "Total number of command runs by status",
		}, []string{"command", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "duration_seconds",
			Help:      "Command execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"command"}),

		// Health metrics
		LastSuccessfulImport: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_import_timestamp",
			Help:      "Unix timestamp of last successful import",
		}),
		LastSuccessfulProcess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_process_timestamp",
			Help:      "Unix timestamp of last successful candle rebuild",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordFetch records one data source request.
func RecordFetch(outcome string, seconds float64, trades int) {
	DefaultMetrics.FetchLatency.WithLabelValues(outcome).Observe(seconds)
	DefaultMetrics.TradesFetched.Add(float64(trades))
}

// RecordFetchError records a failed fetch by kind (timeout, source).
func RecordFetchError(kind string) {
	DefaultMetrics.FetchErrors.WithLabelValues(kind).Inc()
}

// RecordFetchRetry increments the fetch retry counter.
func RecordFetchRetry() {
	DefaultMetrics.FetchRetries.Inc()
}

// RecordBatchStored records a persisted batch.
func RecordBatchStored(stored, duplicates int) {
	DefaultMetrics.BatchesProcessed.Inc()
	DefaultMetrics.TradesStored.Add(float64(stored))
	DefaultMetrics.TradesDuplicate.Add(float64(duplicates))
}

// UpdateImportCursor updates the cursor gauge for a pair.
func UpdateImportCursor(pair string, cursor int64) {
	DefaultMetrics.ImportCursor.WithLabelValues(pair).Set(float64(cursor))
}

// RecordPageScanned records one trade page read by the processor.
func RecordPageScanned(trades int) {
	DefaultMetrics.PagesScanned.Inc()
	DefaultMetrics.TradesScanned.Add(float64(trades))
}

// RecordCandlesWritten records candles written for an interval.
func RecordCandlesWritten(interval string, n int) {
	DefaultMetrics.CandlesWritten.WithLabelValues(interval).Add(float64(n))
}

// RecordIntervalFailure records a failed interval.
func RecordIntervalFailure(interval string) {
	DefaultMetrics.IntervalFailures.WithLabelValues(interval).Inc()
}

// RecordRun records a command run.
func RecordRun(command, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(command, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(command).Observe(durationSeconds)
}

// MarkImportSuccess sets the last successful import timestamp.
func MarkImportSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulImport.Set(float64(unix))
}

// MarkProcessSuccess sets the last successful process timestamp.
func MarkProcessSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulProcess.Set(float64(unix))
}
