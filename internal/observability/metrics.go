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
	// Intake metrics
	ObservationsIngested prometheus.Counter
	PromotionsIngested   prometheus.Counter
	IntakeErrors         *prometheus.CounterVec

	// Analysis metrics
	AnalysesRun      *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec

	// Change detection metrics
	ChangeEventsDetected *prometheus.CounterVec
	RecommendationsBuilt prometheus.Counter

	// Feed metrics
	FeedSubscribers  prometheus.Gauge
	FeedMessagesSent prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScan prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "competitor_intel"
	}

	return &Metrics{
		ObservationsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "observations_ingested_total",
			Help:      "Total number of product observations ingested",
		}),
		PromotionsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "promotions_ingested_total",
			Help:      "Total number of promotion observations ingested",
		}),
		IntakeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "errors_total",
			Help:      "Total number of intake errors",
		}, []string{"kind", "reason"}),

		AnalysesRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis operations run",
		}, []string{"operation", "status"}),
		AnalysisDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		ChangeEventsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changes",
			Name:      "events_detected_total",
			Help:      "Total number of change events detected by kind",
		}, []string{"kind"}),
		RecommendationsBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changes",
			Name:      "recommendations_built_total",
			Help:      "Total number of recommendations produced",
		}),

		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of connected change-feed subscribers",
		}),
		FeedMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_sent_total",
			Help:      "Total number of change-feed messages sent",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of the last successful change scan",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordObservationsIngested adds n to the observation intake counter.
func RecordObservationsIngested(n int) {
	DefaultMetrics.ObservationsIngested.Add(float64(n))
}

// RecordPromotionsIngested adds n to the promotion intake counter.
func RecordPromotionsIngested(n int) {
	DefaultMetrics.PromotionsIngested.Add(float64(n))
}

// RecordIntakeError records an intake validation or storage error.
func RecordIntakeError(kind, reason string) {
	DefaultMetrics.IntakeErrors.WithLabelValues(kind, reason).Inc()
}

// RecordAnalysis records one analysis operation run.
func RecordAnalysis(operation, status string, seconds float64) {
	DefaultMetrics.AnalysesRun.WithLabelValues(operation, status).Inc()
	DefaultMetrics.AnalysisDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordChangeEvents adds n detected events of one kind.
func RecordChangeEvents(kind string, n int) {
	DefaultMetrics.ChangeEventsDetected.WithLabelValues(kind).Add(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
