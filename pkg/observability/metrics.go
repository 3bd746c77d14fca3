package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	AuthAttemptsTotal         *prometheus.CounterVec
	RateLimitedTotal          *prometheus.CounterVec
	RateLimitStoreErrorsTotal *prometheus.CounterVec
	EntitlementChecksTotal    *prometheus.CounterVec
	PasswordHashDuration      prometheus.Histogram

	// Dependency metrics
	HealthCheckDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadexchange_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadexchange_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadexchange_auth_attempts_total",
				Help: "Login and registration attempts by outcome",
			},
			[]string{"action", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadexchange_auth_rate_limited_total",
				Help: "Requests rejected by an auth rate limit policy",
			},
			[]string{"policy"},
		),
		RateLimitStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadexchange_rate_limit_store_errors_total",
				Help: "Rate limit store failures (requests fail open)",
			},
			[]string{"policy"},
		),
		EntitlementChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadexchange_entitlement_checks_total",
				Help: "Entitlement middleware decisions",
			},
			[]string{"entitlement", "outcome"},
		),
		PasswordHashDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadexchange_password_hash_duration_seconds",
				Help:    "Time spent deriving password hashes",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
		),
		HealthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadexchange_health_check_duration_seconds",
				Help:    "Dependency probe latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dependency", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.RateLimitedTotal,
		m.RateLimitStoreErrorsTotal,
		m.EntitlementChecksTotal,
		m.PasswordHashDuration,
		m.HealthCheckDuration,
	)

	return m
}

// ObservePasswordHash records how long a key derivation took
func (m *Metrics) ObservePasswordHash(start time.Time) {
	if m == nil {
		return
	}
	m.PasswordHashDuration.Observe(time.Since(start).Seconds())
}

// RecordAuthAttempt counts a login or registration outcome
func (m *Metrics) RecordAuthAttempt(action, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(action, outcome).Inc()
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux template so path parameters do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
