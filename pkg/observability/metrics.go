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

	// Identity metrics
	AuthAttemptsTotal     *prometheus.CounterVec
	TokenValidationsTotal *prometheus.CounterVec

	// Authorization metrics
	AuthzDecisionsTotal  *prometheus.CounterVec
	AuthzDecisionLatency *prometheus.HistogramVec
	TenantViolations     *prometheus.CounterVec
	PermissionCacheHits  prometheus.Counter
	PermissionCacheMiss  prometheus.Counter

	// Audit metrics
	AuditWritesTotal        *prometheus.CounterVec
	AuditWriteFailuresTotal *prometheus.CounterVec
	AuditRetentionDeleted   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_auth_attempts_total",
				Help: "Authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_token_validations_total",
				Help: "Token validations by outcome",
			},
			[]string{"outcome"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_authz_decisions_total",
				Help: "Policy decisions by entity type, action and result",
			},
			[]string{"entity_type", "action", "decision"},
		),
		AuthzDecisionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_authz_decision_duration_seconds",
				Help:    "Policy evaluation duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"entity_type"},
		),
		TenantViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_tenant_violations_total",
				Help: "Rejected cross-tenant reads and writes",
			},
			[]string{"entity_type", "operation"},
		),
		PermissionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_permission_cache_hits_total",
				Help: "Effective permission cache hits",
			},
		),
		PermissionCacheMiss: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_permission_cache_misses_total",
				Help: "Effective permission cache misses",
			},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_audit_writes_total",
				Help: "Audit records written by action",
			},
			[]string{"action"},
		),
		AuditWriteFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_audit_write_failures_total",
				Help: "Audit records that could not be persisted",
			},
			[]string{"action", "fatal"},
		),
		AuditRetentionDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_audit_retention_deleted_total",
				Help: "Audit records purged by retention cleanup",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.TokenValidationsTotal,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionLatency,
		m.TenantViolations,
		m.PermissionCacheHits,
		m.PermissionCacheMiss,
		m.AuditWritesTotal,
		m.AuditWriteFailuresTotal,
		m.AuditRetentionDeleted,
	)

	return m
}

// NewNopMetrics returns metrics registered on a private registry, for tests and
// for components constructed without a shared registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplate keeps label cardinality bounded by using the mux route pattern
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler returns the /metrics handler for a registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
