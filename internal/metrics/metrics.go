// Package metrics provides Prometheus instrumentation for Sentinel.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts completed assessments by decision and risk level.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "assessments_total",
			Help:      "Total fraud assessments by decision and risk level.",
		},
		[]string{"decision", "risk_level"},
	)

	// PipelineDuration observes end-to-end invocation latency. Buckets are
	// sized for the 100ms budget.
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "pipeline_duration_seconds",
		Help:      "End-to-end assessment latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 1},
	})

	// StageDuration observes per-stage latency inside one invocation.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"stage"},
	)

	// DuplicatesTotal counts submissions answered from a persisted assessment.
	DuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "duplicate_submissions_total",
		Help:      "Total resubmissions answered from the stored assessment.",
	})

	// InflightAssessments tracks assessments currently being computed.
	InflightAssessments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "inflight_assessments",
		Help:      "Assessments currently being computed.",
	})

	// FallbacksTotal counts degraded decision paths by fallback reason.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "fallbacks_total",
			Help:      "Total assessments decided through a fallback policy, by reason.",
		},
		[]string{"reason"},
	)

	// ModelFailuresTotal counts excluded sub-models by model id and failure kind.
	ModelFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "model_failures_total",
			Help:      "Total sub-model exclusions by model and failure kind.",
		},
		[]string{"model", "kind"},
	)

	// RuleFiringsTotal counts rule matches by rule id.
	RuleFiringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "rule_firings_total",
			Help:      "Total rule firings by rule id.",
		},
		[]string{"rule"},
	)

	// AlertsTotal counts raised alerts by risk level.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alerts_total",
			Help:      "Total alerts raised by risk level.",
		},
		[]string{"risk_level"},
	)

	// StreamMessagesTotal counts Kafka ingestion outcomes.
	StreamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "stream_messages_total",
			Help:      "Total stream messages consumed, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		PipelineDuration,
		StageDuration,
		DuplicatesTotal,
		InflightAssessments,
		FallbacksTotal,
		ModelFailuresTotal,
		RuleFiringsTotal,
		AlertsTotal,
		StreamMessagesTotal,
	)
}

// ObserveStage records one stage latency sample.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency. The path label is the chi
// route pattern, not the raw URL, to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, statusBucket(rw.status)).Inc()
	})
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// statusBucket groups status codes into 2xx/3xx/4xx/5xx.
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
