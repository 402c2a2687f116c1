package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyErrorsTotal   *prometheus.CounterVec

	// Upstream (Anthropic) metrics
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamErrorsTotal   *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec

	// Baseline run metrics
	BaselineRunsTotal   *prometheus.CounterVec
	BaselineRunDuration *prometheus.HistogramVec
	BaselineScores      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// scoreBuckets are histogram buckets for baseline scores (0 to 1)
var scoreBuckets = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		ProxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxy requests received",
			},
			[]string{"outcome"},
		),
		ProxyErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Total number of locally generated proxy errors",
			},
			[]string{"category"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream API requests",
			},
			[]string{"service", "operation"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total number of upstream API errors",
			},
			[]string{"service", "operation", "error_type"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Duration of upstream API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"service", "operation"},
		),

		BaselineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "baseline",
				Name:      "runs_total",
				Help:      "Total number of baseline probe runs",
			},
			[]string{"status"},
		),
		BaselineRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "baseline",
				Name:      "run_duration_seconds",
				Help:      "Duration of baseline probe runs in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"status"},
		),
		BaselineScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "baseline",
				Name:      "score",
				Help:      "Distribution of per-probe baseline scores",
				Buckets:   scoreBuckets,
			},
			[]string{"metric"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "consciousness_forge",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "consciousness_forge",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "consciousness_forge",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics overrides the global metrics instance (useful for testing)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordProxyRequest records a proxy request and its outcome
func (m *Metrics) RecordProxyRequest(outcome string) {
	m.ProxyRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordProxyError records a locally generated proxy error
func (m *Metrics) RecordProxyError(category string) {
	m.ProxyErrorsTotal.WithLabelValues(category).Inc()
}

// RecordUpstreamRequest records an upstream API request
func (m *Metrics) RecordUpstreamRequest(service, operation string) {
	m.UpstreamRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordUpstreamError records an upstream API error
func (m *Metrics) RecordUpstreamError(service, operation, errorType string) {
	m.UpstreamErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordUpstreamDuration records the duration of an upstream API call
func (m *Metrics) RecordUpstreamDuration(service, operation string, duration time.Duration) {
	m.UpstreamDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordBaselineRun records a completed baseline run
func (m *Metrics) RecordBaselineRun(status string, duration time.Duration) {
	m.BaselineRunsTotal.WithLabelValues(status).Inc()
	m.BaselineRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordBaselineScore records a per-probe baseline score
func (m *Metrics) RecordBaselineScore(metric string, score float64) {
	m.BaselineScores.WithLabelValues(metric).Observe(score)
}

// RecordDBQuery records a database query duration
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveUpstream records the upstream API call duration
func (t *Timer) ObserveUpstream(service, operation string) {
	t.metrics.RecordUpstreamDuration(service, operation, time.Since(t.start))
}

// ObserveBaselineRun records the baseline run duration
func (t *Timer) ObserveBaselineRun(status string) {
	t.metrics.RecordBaselineRun(status, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
