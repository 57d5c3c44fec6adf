// Package metrics implements the Prometheus-backed progress sink:
// per-country fetch attempts, retry exhaustion, curated record counts, and
// worker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quay/claircore-geoindex/internal/progress"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoindex",
			Subsystem: "coordinator",
			Name:      "fetch_attempts_total",
			Help:      "Total number of fetch attempts issued by the coordinator, by country.",
		},
		[]string{"country"},
	)

	retryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoindex",
			Subsystem: "coordinator",
			Name:      "retry_exhausted_total",
			Help:      "Total number of countries whose fetch retry protocol exhausted RETRY_LIMIT.",
		},
		[]string{"country"},
	)

	curatedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "geoindex",
			Subsystem: "worker",
			Name:      "curated_records",
			Help:      "Number of curated (enriched populated-place) records in a country's last successful FCP list.",
		},
		[]string{"country"},
	)

	workerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "geoindex",
			Subsystem: "worker",
			Name:      "state",
			Help:      "Current worker state machine node, by country and phase label.",
		},
		[]string{"country", "phase"},
	)
)

// ObserveFetchAttempt increments the fetch-attempt counter for country.
func ObserveFetchAttempt(country string) {
	fetchAttempts.WithLabelValues(country).Inc()
}

// ObserveRetryExhausted increments the retry-exhaustion counter for country.
func ObserveRetryExhausted(country string) {
	retryExhausted.WithLabelValues(country).Inc()
}

// ObserveCuratedRecords sets the curated record count gauge for country.
func ObserveCuratedRecords(country string, n int) {
	curatedRecords.WithLabelValues(country).Set(float64(n))
}

// Sink is a progress.Progress consumer that feeds the worker-state gauge.
// It implements the manager's ProgressSink interface.
type Sink struct{}

// NewSink returns a metrics-backed ProgressSink.
func NewSink() Sink { return Sink{} }

// Observe records one progress report as a state gauge update.
func (Sink) Observe(p progress.Progress) {
	workerState.WithLabelValues(p.Country, string(p.Phase)).Set(float64(p.Pct))
}
