package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.TradesStored.Add(3)
	m.CandlesWritten.WithLabelValues("5m").Add(2)
	m.CandlesWritten.WithLabelValues("1h").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TradesStored))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandlesWritten.WithLabelValues("5m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandlesWritten.WithLabelValues("1h")))

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_import_trades_stored_total")
	assert.Contains(t, names, "test_process_candles_written_total")
}

func TestRecordHelpers_UpdateDefaultMetrics(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TradesDuplicate)
	RecordBatchStored(7, 3)
	assert.Equal(t, before+3, testutil.ToFloat64(DefaultMetrics.TradesDuplicate))

	UpdateImportCursor("BTCUSDT", 501)
	assert.Equal(t, 501.0, testutil.ToFloat64(DefaultMetrics.ImportCursor.WithLabelValues("BTCUSDT")))

	failures := testutil.ToFloat64(DefaultMetrics.IntervalFailures.WithLabelValues("7x"))
	RecordIntervalFailure("7x")
	assert.Equal(t, failures+1, testutil.ToFloat64(DefaultMetrics.IntervalFailures.WithLabelValues("7x")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	RecordPageScanned(10)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "trade_candle_lab_process_pages_scanned_total"))
}
