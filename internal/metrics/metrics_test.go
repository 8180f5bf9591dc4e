package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleCounters(t *testing.T) {
	kind := "test_lifecycle"

	IncStarted(kind)
	IncStarted(kind)
	IncCompleted(kind)
	IncFailed(kind)
	IncCanceled(kind, false)
	IncCanceled(kind, true)
	IncCanceled(kind, true)
	ObserveDuration(kind, 25*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(transactionStarted.WithLabelValues(kind)))
	assert.Equal(t, 1.0, testutil.ToFloat64(transactionCompleted.WithLabelValues(kind)))
	assert.Equal(t, 1.0, testutil.ToFloat64(transactionFailed.WithLabelValues(kind)))
	assert.Equal(t, 1.0, testutil.ToFloat64(transactionCanceled.WithLabelValues(kind, "peaceful")))
	assert.Equal(t, 2.0, testutil.ToFloat64(transactionCanceled.WithLabelValues(kind, "forced")))
}

func TestGauges(t *testing.T) {
	SetQueued(3)
	SetTables(2)
	SetTracks(120)

	assert.Equal(t, 3.0, testutil.ToFloat64(queuedGauge))
	assert.Equal(t, 2.0, testutil.ToFloat64(tablesGauge))
	assert.Equal(t, 120.0, testutil.ToFloat64(tracksGauge))
}

func TestHandler(t *testing.T) {
	IncStarted("scrape")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cadence_transactions_started_total"))

	assert.NotPanics(t, Register, "registration is idempotent")
}
