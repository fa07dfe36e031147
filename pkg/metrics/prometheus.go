// Package metrics exposes Prometheus instrumentation for the alert engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the engine's Prometheus collectors.
type Recorder struct {
	runsTotal        prometheus.Counter
	instrumentsTotal *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	providerErrors   prometheus.Counter
	runDuration      prometheus.Histogram
}

// Alert outcome labels.
const (
	OutcomeEmitted      = "emitted"
	OutcomeDeduplicated = "deduplicated"
	OutcomeSuppressed   = "suppressed"
)

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return &Recorder{
		runsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_runs_total",
			Help: "Total number of evaluation runs",
		}),
		instrumentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_instruments_total",
			Help: "Instruments processed per outcome",
		}, []string{"outcome"}), // "evaluated" or "skipped"
		alertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_alerts_total",
			Help: "Rule transitions per gate outcome",
		}, []string{"rule", "outcome"}),
		providerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_provider_errors_total",
			Help: "Price provider failures",
		}),
		runDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchtower_run_duration_seconds",
			Help:    "Duration of one evaluation run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordRun records one completed run and its duration.
func (r *Recorder) RecordRun(seconds float64) {
	r.runsTotal.Inc()
	r.runDuration.Observe(seconds)
}

// RecordInstrument records a processed instrument outcome.
func (r *Recorder) RecordInstrument(outcome string) {
	r.instrumentsTotal.WithLabelValues(outcome).Inc()
}

// RecordAlert records a gate decision for a rule transition.
func (r *Recorder) RecordAlert(rule, outcome string) {
	r.alertsTotal.WithLabelValues(rule, outcome).Inc()
}

// RecordProviderError records a price provider failure.
func (r *Recorder) RecordProviderError() {
	r.providerErrors.Inc()
}
