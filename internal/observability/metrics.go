package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the console. A nil
// *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Mutation metrics
	MutationsTotal          *prometheus.CounterVec
	MutationDuration        *prometheus.HistogramVec
	ValidationFailuresTotal *prometheus.CounterVec

	// Route guard and sessions
	GuardDecisionsTotal *prometheus.CounterVec
	LoginsTotal         *prometheus.CounterVec
	ActiveViews         prometheus.Gauge
	ViewEventsTotal     *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge

	// Cache metrics
	CollectionCacheHitsTotal   *prometheus.CounterVec
	CollectionCacheMissesTotal *prometheus.CounterVec
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	LookupCacheHitsTotal       *prometheus.CounterVec
	LookupCacheMissesTotal     *prometheus.CounterVec

	// System metrics
	DefinitionsLoaded        prometheus.Gauge
	OpenAPIOperationsIndexed prometheus.Gauge
	SearchDuration           prometheus.Histogram
	SearchProvidersResponded prometheus.Histogram
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maximiza_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maximiza_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maximiza_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_mutations_total",
			Help: "Create, update and delete requests by outcome.",
		}, []string{"resource", "action", "outcome"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maximiza_mutation_duration_seconds",
			Help:    "Mutation duration in seconds, re-fetch included.",
			Buckets: backendDurationBuckets,
		}, []string{"resource", "action"}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_form_validation_failures_total",
			Help: "Total number of rejected form submissions.",
		}, []string{"resource"}),

		GuardDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_guard_decisions_total",
			Help: "Route guard decisions by outcome.",
		}, []string{"outcome"}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		ActiveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maximiza_views_mounted",
			Help: "Number of mounted list views.",
		}),
		ViewEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_view_events_total",
			Help: "List view events by kind.",
		}, []string{"event"}),

		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_backend_requests_total",
			Help: "Total number of backend requests.",
		}, []string{"resource", "operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maximiza_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"resource"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maximiza_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),

		CollectionCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_collection_cache_hits_total",
			Help: "Total collection cache hits.",
		}, []string{"resource"}),
		CollectionCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_collection_cache_misses_total",
			Help: "Total collection cache misses.",
		}, []string{"resource"}),
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maximiza_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maximiza_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"lookup_id"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maximiza_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"lookup_id"}),

		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maximiza_definitions_loaded",
			Help: "Number of loaded definitions.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maximiza_openapi_operations_indexed",
			Help: "Number of indexed backend OpenAPI operations.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maximiza_search_duration_seconds",
			Help:    "Global search duration in seconds.",
			Buckets: backendDurationBuckets,
		}),
		SearchProvidersResponded: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maximiza_search_providers_responded",
			Help:    "Number of search providers that responded.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.MutationsTotal,
		m.MutationDuration,
		m.ValidationFailuresTotal,
		m.GuardDecisionsTotal,
		m.LoginsTotal,
		m.ActiveViews,
		m.ViewEventsTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.CollectionCacheHitsTotal,
		m.CollectionCacheMissesTotal,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		m.DefinitionsLoaded,
		m.OpenAPIOperationsIndexed,
		m.SearchDuration,
		m.SearchProvidersResponded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordMutation records a create, update or delete and its outcome.
func (m *Metrics) RecordMutation(resource, action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(resource, action, outcome).Inc()
	m.MutationDuration.WithLabelValues(resource, action).Observe(duration.Seconds())
}

// RecordValidationFailure records a form rejected before reaching the backend.
func (m *Metrics) RecordValidationFailure(resource string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(resource).Inc()
}

// RecordGuardDecision records one route guard outcome.
func (m *Metrics) RecordGuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordLogin records a login attempt: "success", "rejected" or "error".
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// SetActiveViews sets the number of mounted views.
func (m *Metrics) SetActiveViews(n int) {
	if m == nil {
		return
	}
	m.ActiveViews.Set(float64(n))
}

// RecordViewEvent records a list view event (search, sort, page, ...).
func (m *Metrics) RecordViewEvent(event string) {
	if m == nil {
		return
	}
	m.ViewEventsTotal.WithLabelValues(event).Inc()
}

// RecordBackendRequest records a backend request. status is 0 when no
// response arrived.
func (m *Metrics) RecordBackendRequest(resource, operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(resource, operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the breaker state gauge.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordCollectionCache records a collection cache lookup.
func (m *Metrics) RecordCollectionCache(resource string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CollectionCacheHitsTotal.WithLabelValues(resource).Inc()
		return
	}
	m.CollectionCacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(lookupID string) {
	if m == nil {
		return
	}
	m.LookupCacheHitsTotal.WithLabelValues(lookupID).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(lookupID string) {
	if m == nil {
		return
	}
	m.LookupCacheMissesTotal.WithLabelValues(lookupID).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(float64(count))
}

// SetOpenAPIOperationsIndexed sets the number of indexed backend operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count int) {
	if m == nil {
		return
	}
	m.OpenAPIOperationsIndexed.Set(float64(count))
}

// RecordSearch records a global search.
func (m *Metrics) RecordSearch(duration time.Duration, providersResponded int) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(duration.Seconds())
	m.SearchProvidersResponded.Observe(float64(providersResponded))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.TrimSuffix(strings.Join(rctx.RoutePatterns, ""), "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
