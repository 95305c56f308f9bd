package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the authorization and
// audit core. The audit failure counter matters most operationally: a
// silently failing audit trail defeats its purpose, so every swallowed
// append error must land here.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization
	AuthzChecksTotal   *prometheus.CounterVec // outcome: allow|deny|error
	AuthzResolveErrors prometheus.Counter

	// Audit trail
	AuditAppendsTotal   *prometheus.CounterVec // status: ok|failed
	AuditAppendFailures prometheus.Counter

	// Realtime propagation
	RealtimeConnections    prometheus.Gauge
	PropagationEventsTotal *prometheus.CounterVec // result: delivered|dropped|published
	RealtimeJoinsTotal     prometheus.Counter

	// Membership lifecycle
	InvitesRateLimited prometheus.Counter

	// Database pool
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers the core's metrics on the registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "girder_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "girder_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "girder_authz_checks_total",
				Help: "Permission checks by outcome",
			},
			[]string{"outcome"},
		),
		AuthzResolveErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "girder_authz_resolve_errors_total",
				Help: "Permission resolutions that failed and denied",
			},
		),
		AuditAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "girder_audit_appends_total",
				Help: "Audit log appends by status",
			},
			[]string{"status"},
		),
		AuditAppendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "girder_audit_append_failures_total",
				Help: "Audit appends swallowed at the best-effort boundary",
			},
		),
		RealtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "girder_realtime_connections",
				Help: "Currently open propagation channel connections",
			},
		),
		PropagationEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "girder_propagation_events_total",
				Help: "Permission propagation events by result",
			},
			[]string{"result"},
		),
		RealtimeJoinsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "girder_realtime_joins_total",
				Help: "join_tenant messages accepted",
			},
		),
		InvitesRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "girder_invites_rate_limited_total",
				Help: "Invitations rejected by the rate limiter",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "girder_db_connections_active",
				Help: "Open database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "girder_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzChecksTotal,
		m.AuthzResolveErrors,
		m.AuditAppendsTotal,
		m.AuditAppendFailures,
		m.RealtimeConnections,
		m.PropagationEventsTotal,
		m.RealtimeJoinsTotal,
		m.InvitesRateLimited,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter captures the status code for metrics labels.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests with count and duration.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint mounts /metrics on the given mux.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
