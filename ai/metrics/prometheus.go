// Package metrics provides Prometheus metrics export for the dispatch core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatchcore"

// Provider attempt outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeTransient       = "transient_error"
	OutcomePermanent       = "permanent_error"
	OutcomeQualityRejected = "quality_rejected"
	OutcomeBudgetSkipped   = "budget_skipped"
	OutcomeNotConfigured   = "not_configured"
	OutcomeForced          = "forced_failure"
)

// PrometheusExporter exports dispatch metrics in Prometheus format.
// A nil exporter is valid and records nothing.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
	turnsActive prometheus.Gauge

	// Provider metrics
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	tokens           *prometheus.CounterVec

	// Quality gate
	qualityScore  *prometheus.HistogramVec
	qualityFailed *prometheus.CounterVec

	// Budget
	budgetAlerts *prometheus.CounterVec

	// Conversation memory
	compactions        prometheus.Counter
	compactedEvents    prometheus.Counter
	staleMemoriesSwept prometheus.Counter
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "turns_total",
			Help:      "Total number of dispatched turns",
		},
		[]string{"task_type", "status"},
	)

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"task_type"},
	)

	e.turnsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "turns_active",
			Help:      "Number of turns currently being dispatched",
		},
	)

	e.providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	e.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)

	e.tokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens recorded against tenant budgets",
		},
		[]string{"provider", "token_type"},
	)

	e.qualityScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "score",
			Help:      "Quality gate score of provider answers",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"provider"},
	)

	e.qualityFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "check_failures_total",
			Help:      "Failed quality checks by name",
		},
		[]string{"check"},
	)

	e.budgetAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "alerts_total",
			Help:      "Budget alerts raised by type",
		},
		[]string{"type"},
	)

	e.compactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "compactions_total",
		Help:      "History compactions performed",
	})

	e.compactedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "compacted_events_total",
		Help:      "History events folded into compaction summaries",
	})

	e.staleMemoriesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "stale_swept_total",
		Help:      "Conversation memories deleted by the TTL sweep",
	})

	registry.MustRegister(
		e.turns,
		e.turnLatency,
		e.turnsActive,
		e.providerAttempts,
		e.providerLatency,
		e.tokens,
		e.qualityScore,
		e.qualityFailed,
		e.budgetAlerts,
		e.compactions,
		e.compactedEvents,
		e.staleMemoriesSwept,
	)

	return e
}

// RecordTurn records a finished turn.
func (e *PrometheusExporter) RecordTurn(taskType string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	e.turns.WithLabelValues(taskType, status).Inc()
	e.turnLatency.WithLabelValues(taskType).Observe(latency.Seconds())
}

// TurnStarted increments the active turn gauge and returns its decrement.
func (e *PrometheusExporter) TurnStarted() func() {
	if e == nil {
		return func() {}
	}
	e.turnsActive.Inc()
	return e.turnsActive.Dec
}

// RecordProviderAttempt records one provider attempt and its outcome.
func (e *PrometheusExporter) RecordProviderAttempt(provider, outcome string, latency time.Duration) {
	if e == nil {
		return
	}
	e.providerAttempts.WithLabelValues(provider, outcome).Inc()
	if latency > 0 {
		e.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}

// RecordTokens records accounted input and output tokens.
func (e *PrometheusExporter) RecordTokens(provider string, input, output int64) {
	if e == nil {
		return
	}
	e.tokens.WithLabelValues(provider, "input").Add(float64(input))
	e.tokens.WithLabelValues(provider, "output").Add(float64(output))
}

// RecordQuality records a quality gate score and its failed checks.
func (e *PrometheusExporter) RecordQuality(provider string, score int, failedChecks []string) {
	if e == nil {
		return
	}
	e.qualityScore.WithLabelValues(provider).Observe(float64(score))
	for _, check := range failedChecks {
		e.qualityFailed.WithLabelValues(check).Inc()
	}
}

// RecordBudgetAlert records a raised budget alert.
func (e *PrometheusExporter) RecordBudgetAlert(alertType string) {
	if e == nil {
		return
	}
	e.budgetAlerts.WithLabelValues(alertType).Inc()
}

// ObserveCompaction implements memory.Observer.
func (e *PrometheusExporter) ObserveCompaction(summarized int) {
	if e == nil {
		return
	}
	e.compactions.Inc()
	e.compactedEvents.Add(float64(summarized))
}

// ObserveStaleCleanup implements memory.Observer.
func (e *PrometheusExporter) ObserveStaleCleanup(deleted int) {
	if e == nil {
		return
	}
	e.staleMemoriesSwept.Add(float64(deleted))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
