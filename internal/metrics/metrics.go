// Package metrics holds the Prometheus collectors of the form service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visakal_form"

var (
	// Registry holds the service collectors; /metrics serves exactly this registry.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"method", "route"})

	sessionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "forms",
		Name:      "opened_total",
		Help:      "Form sessions opened, by country.",
	}, []string{"country"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "forms",
		Name:      "active_sessions",
		Help:      "Form sessions held in memory.",
	})

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "forms",
		Name:      "submissions_total",
		Help:      "Submit attempts by result: valid, invalid, error.",
	}, []string{"result"})

	uploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "forms",
		Name:      "upload_duration_seconds",
		Help:      "Time spent in file uploads including the storage round-trip.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "executed_total",
		Help:      "Payment executions by outcome.",
	}, []string{"outcome"})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Lifecycle events that could not be published.",
	}, []string{"type"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sessionsOpened,
		activeSessions,
		submissions,
		uploadDuration,
		payments,
		publishFailures,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request metrics. The route label is the ServeMux pattern
// that matched, so ids in paths do not create new series.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func RecordSessionOpened(countryID string) {
	if countryID == "" {
		countryID = "unknown"
	}
	sessionsOpened.WithLabelValues(countryID).Inc()
}

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }

// RecordSubmission result is "valid", "invalid" or "error".
func RecordSubmission(result string) { submissions.WithLabelValues(result).Inc() }

func ObserveUpload(d time.Duration) { uploadDuration.Observe(d.Seconds()) }

func RecordPayment(outcome string) { payments.WithLabelValues(outcome).Inc() }

func RecordPublishFailure(eventType string) { publishFailures.WithLabelValues(eventType).Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
