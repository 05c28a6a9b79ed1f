package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels a tick that completed without error.
	OutcomeSuccess = "success"
	// OutcomeError labels a tick that failed (detection or incident
	// processing error). A correlation failure is logged and does not
	// change the outcome.
	OutcomeError = "error"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "ticks_total",
			Help:      "Total number of detection ticks run, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinelops",
			Name:      "tick_duration_seconds",
			Help:      "Full detect-correlate-match-analyze-incident tick latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "anomalies_total",
			Help:      "Total anomalies detected, partitioned by severity.",
		},
		[]string{"severity"},
	)

	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "incidents_created_total",
			Help:      "Total incidents created, partitioned by severity.",
		},
		[]string{"severity"},
	)

	incidentsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "incidents_suppressed_total",
			Help:      "Total anomaly groups suppressed by dedup within the cooldown window.",
		},
	)

	analyzerLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinelops",
			Name:      "analyzer_latency_seconds",
			Help:      "Language model analyzer call latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	analyzerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "analyzer_failures_total",
			Help:      "Total analyzer calls that produced no usable analysis.",
		},
	)
)

// Register attaches the SentinelOps collectors to the supplied Prometheus
// registerer. Re-registration is tolerated so tests and reloads can call it
// more than once.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ticksTotal,
		tickDurationSeconds,
		anomaliesTotal,
		incidentsCreatedTotal,
		incidentsSuppressedTotal,
		analyzerLatencySeconds,
		analyzerFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTick records one tick's duration and outcome label.
func ObserveTick(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	ticksTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	tickDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnomaly increments the anomaly counter for severity.
func ObserveAnomaly(severity string) {
	anomaliesTotal.WithLabelValues(severity).Inc()
}

// ObserveIncidentCreated increments the incident-created counter for severity.
func ObserveIncidentCreated(severity string) {
	incidentsCreatedTotal.WithLabelValues(severity).Inc()
}

// ObserveIncidentSuppressed increments the dedup-suppression counter.
func ObserveIncidentSuppressed() {
	incidentsSuppressedTotal.Inc()
}

// ObserveAnalyzerLatency records one analyzer call's duration.
func ObserveAnalyzerLatency(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	analyzerLatencySeconds.Observe(duration.Seconds())
}

// ObserveAnalyzerFailure increments the analyzer-failure counter.
func ObserveAnalyzerFailure() {
	analyzerFailuresTotal.Inc()
}
