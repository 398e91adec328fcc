package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
	"github.com/platinummonkey/helios/pkg/realtime"
)

// DefaultMaxBodyBytes caps JSON request bodies
const DefaultMaxBodyBytes = 1 << 20

// Config holds HTTP surface settings
type Config struct {
	CORSOrigins  []string
	MaxBodyBytes int64

	// TrustedProxies decides whose X-Forwarded-For is believed; nil trusts nobody
	TrustedProxies *httputil.TrustedProxies

	// RetryAfter is advertised to throttled clients
	RetryAfter time.Duration

	// Tracing wraps the handler with OpenTelemetry instrumentation
	Tracing     bool
	ServiceName string
}

// Deps are the collaborators the API server routes to
type Deps struct {
	Auth          *auth.Service
	Authenticator *middleware.Authenticator
	Users         UserStore
	Orgs          orgs.Service
	Realtime      *realtime.Service

	// AuthLimiter throttles credential endpoints per client IP; nil disables it
	AuthLimiter middleware.Limiter

	// Registry is served on /metrics when set
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server. ctx bounds the lifetime of websocket
// connections accepted on /ws.
func NewServer(ctx context.Context, cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 15 * time.Minute
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "helios-api"
	}

	s := &Server{router: mux.NewRouter()}
	if deps.Metrics != nil {
		// Router middleware runs after matching, so requests are labeled by route template
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.setupRoutes(ctx, cfg, deps)

	middlewares := []func(http.Handler) http.Handler{
		httputil.ClientIPMiddleware(cfg.TrustedProxies),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
	}
	s.handler = httputil.Chain(middlewares...)(s.router)

	if cfg.Tracing {
		s.handler = otelhttp.NewHandler(s.handler, cfg.ServiceName)
	}
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(ctx context.Context, cfg Config, deps Deps) {
	throttle := func(next http.Handler) http.Handler { return next }
	if deps.AuthLimiter != nil {
		throttle = middleware.RateLimit(deps.AuthLimiter, cfg.RetryAfter, deps.Logger)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	NewAuthHandlers(deps.Auth, deps.Users, deps.Metrics, deps.Logger).RegisterRoutes(api, deps.Authenticator, throttle)
	NewValidationHandlers(deps.Users, deps.Orgs, deps.Logger).RegisterRoutes(api)
	NewOrgHandlers(deps.Orgs, deps.Logger).RegisterRoutes(api, deps.Authenticator)

	if deps.Realtime != nil {
		NewRealtimeHandlers(deps.Realtime).RegisterRoutes(api, deps.Authenticator)
		s.router.Handle("/ws", deps.Realtime.ServeWS(ctx)).Methods("GET")
	}
	if deps.Registry != nil {
		s.router.Handle("/metrics", observability.Handler(deps.Registry)).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAPIError(w, http.StatusNotFound, httputil.APIError{
			Error:   "Not found",
			Message: "Route " + r.Method + " " + r.URL.Path + " not found",
		})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}
