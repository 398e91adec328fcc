package observability

import (
	"bufio"
	"fmt"
	"net"
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

	// Authentication metrics
	AuthFailuresTotal  *prometheus.CounterVec
	LoginAttemptsTotal *prometheus.CounterVec
	AccountLockouts    prometheus.Counter
	TokensIssuedTotal  *prometheus.CounterVec

	// Session store metrics
	SessionStoreAvailable prometheus.Gauge

	// Realtime metrics
	WebsocketConnections prometheus.Gauge
	WebsocketEventsTotal *prometheus.CounterVec
	BroadcastsTotal      *prometheus.CounterVec
	BroadcastErrorsTotal *prometheus.CounterVec
	BroadcastDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helios_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_auth_failures_total",
				Help: "Total number of rejected requests by authentication code",
			},
			[]string{"code"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AccountLockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "helios_account_lockouts_total",
				Help: "Total number of logins rejected by the lockout policy",
			},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_tokens_issued_total",
				Help: "Total number of signed tokens issued",
			},
			[]string{"type"},
		),

		SessionStoreAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "helios_session_store_available",
				Help: "1 when the session store is configured and reachable",
			},
		),

		WebsocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "helios_websocket_connections",
				Help: "Number of connected websocket clients",
			},
		),
		WebsocketEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_websocket_events_total",
				Help: "Total number of client events received",
			},
			[]string{"event"},
		),
		BroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_broadcasts_total",
				Help: "Total number of server events emitted",
			},
			[]string{"event"},
		),
		BroadcastErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helios_broadcast_errors_total",
				Help: "Total number of failed periodic broadcast iterations",
			},
			[]string{"job"},
		),
		BroadcastDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helios_broadcast_duration_seconds",
				Help:    "Periodic broadcast job duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.LoginAttemptsTotal,
		m.AccountLockouts,
		m.TokensIssuedTotal,
		m.SessionStoreAvailable,
		m.WebsocketConnections,
		m.WebsocketEventsTotal,
		m.BroadcastsTotal,
		m.BroadcastErrorsTotal,
		m.BroadcastDuration,
	)

	return m
}

// RecordAuthFailure counts a rejected request; safe on a nil receiver
func (m *Metrics) RecordAuthFailure(code string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(code).Inc()
}

// RecordLogin counts a login attempt outcome; safe on a nil receiver
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	if outcome == "locked" {
		m.AccountLockouts.Inc()
	}
}

// RecordTokenIssued counts a signed token; safe on a nil receiver
func (m *Metrics) RecordTokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

// SetSessionStoreAvailable records session store presence; safe on a nil receiver
func (m *Metrics) SetSessionStoreAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.SessionStoreAvailable.Set(1)
		return
	}
	m.SessionStoreAvailable.Set(0)
}

// ConnectionOpened increments the websocket gauge; safe on a nil receiver
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Inc()
}

// ConnectionClosed decrements the websocket gauge; safe on a nil receiver
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Dec()
}

// RecordClientEvent counts an inbound websocket event; safe on a nil receiver
func (m *Metrics) RecordClientEvent(event string) {
	if m == nil {
		return
	}
	m.WebsocketEventsTotal.WithLabelValues(event).Inc()
}

// RecordBroadcast counts an outbound event; safe on a nil receiver
func (m *Metrics) RecordBroadcast(event string) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.WithLabelValues(event).Inc()
}

// ObserveJob records a periodic job run; safe on a nil receiver
func (m *Metrics) ObserveJob(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.BroadcastDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.BroadcastErrorsTotal.WithLabelValues(job).Inc()
	}
}

// HTTPMetricsMiddleware records request counts and latency by route template
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Handler returns the Prometheus scrape handler for registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
