// Package metrics exposes Prometheus instrumentation for the HTTP surface and
// for placeholder resolution. All methods are safe on a nil *Metrics, which
// records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugenenazirov/confref/internal/resolver"
)

const namespace = "confref"

// Resolution outcomes.
const (
	OutcomeOK                = "ok"
	OutcomeReferenceNotFound = "reference_not_found"
	OutcomeCircularReference = "circular_reference"
	OutcomeError             = "error"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	resolutions   *prometheus.CounterVec
	rewrittenKeys prometheus.Counter
}

// New creates a Metrics instance with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern and method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Resolution passes by outcome.",
			},
			[]string{"outcome"},
		),
		rewrittenKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewritten_keys_total",
			Help:      "Keys rewritten by successful resolution passes.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpLatency,
		m.resolutions,
		m.rewrittenKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveResolution records the outcome of one resolution pass.
func (m *Metrics) ObserveResolution(err error, rewritten int) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.rewrittenKeys.Add(float64(rewritten))
	}
}

// Outcome classifies a resolution error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, resolver.ErrReferenceNotFound):
		return OutcomeReferenceNotFound
	case errors.Is(err, resolver.ErrCircularReference):
		return OutcomeCircularReference
	default:
		return OutcomeError
	}
}

// Middleware counts requests and observes their latency. It must wrap an
// http.ServeMux directly (or through handlers that pass the request on
// unchanged) so the matched route pattern is visible after the call.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
