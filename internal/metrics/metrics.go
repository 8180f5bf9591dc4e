// Package metrics exposes prometheus instruments for the transaction engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cadence"

var (
	registerOnce sync.Once

	transactionStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_started_total",
		Help:      "Total number of transactions started by kind",
	}, []string{"kind"})
	transactionCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_completed_total",
		Help:      "Total number of transactions finished without error by kind",
	}, []string{"kind"})
	transactionFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_failed_total",
		Help:      "Total number of transactions finished with an error by kind",
	}, []string{"kind"})
	transactionCanceled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_canceled_total",
		Help:      "Total number of transactions canceled by kind and outcome",
	}, []string{"kind", "outcome"})
	transactionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transaction_duration_seconds",
		Help:      "Histogram of transaction run times in seconds by kind",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"kind"})

	queuedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transactions_queued",
		Help:      "Transactions registered but waiting for their tables",
	})
	tablesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tables_in_flight",
		Help:      "Distinct tables with at least one running or queued transaction",
	})
	tracksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "library_tracks",
		Help:      "Tracks currently held in the in-memory library index",
	})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transactionStarted, transactionCompleted, transactionFailed, transactionCanceled,
			transactionDuration, queuedGauge, tablesGauge, tracksGauge)
	})
}

// Handler registers the instruments and returns the scrape handler.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// Transaction lifecycle helpers
func IncStarted(kind string)   { transactionStarted.WithLabelValues(kind).Inc() }
func IncCompleted(kind string) { transactionCompleted.WithLabelValues(kind).Inc() }
func IncFailed(kind string)    { transactionFailed.WithLabelValues(kind).Inc() }

// IncCanceled counts a cancellation; forced reports that the worker did not exit within the grace period.
func IncCanceled(kind string, forced bool) {
	outcome := "peaceful"
	if forced {
		outcome = "forced"
	}
	transactionCanceled.WithLabelValues(kind, outcome).Inc()
}

func ObserveDuration(kind string, d time.Duration) {
	transactionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Gauges
func SetQueued(n int) { queuedGauge.Set(float64(n)) }
func SetTables(n int) { tablesGauge.Set(float64(n)) }
func SetTracks(n int) { tracksGauge.Set(float64(n)) }
