package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	previewsTotal  *prometheus.CounterVec
	explosionDepth prometheus.Histogram
	commitFailures *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessera_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	previews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_planning_previews_total",
		Help: "Planning previews by outcome.",
	}, []string{"outcome"})
	depth := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tessera_bom_explosion_depth",
		Help:    "Deepest BOM level reached per explosion.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
	})
	commitFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_planning_commit_failures_total",
		Help: "Failed plan lifecycle mutations by operation.",
	}, []string{"operation"})
	registry.MustRegister(requests, duration, previews, depth, commitFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		previewsTotal:   previews,
		explosionDepth:  depth,
		commitFailures:  commitFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePreview counts one preview by outcome ("ok" or "error").
func (m *Metrics) ObservePreview(outcome string) {
	if m == nil {
		return
	}
	m.previewsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExplosionDepth records the deepest level one explosion reached.
func (m *Metrics) ObserveExplosionDepth(depth int) {
	if m == nil {
		return
	}
	m.explosionDepth.Observe(float64(depth))
}

// ObserveCommitFailure counts a failed plan mutation.
func (m *Metrics) ObserveCommitFailure(operation string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(operation).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
