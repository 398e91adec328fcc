package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	// StatusDisabled marks a dependency switched off by configuration
	StatusDisabled = "disabled"
)

const readinessTimeout = 5 * time.Second

// HealthChecker reports the health of Postgres and the optional session store
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string
	started time.Time
}

// NewHealthChecker creates a new health checker. A nil redis client means the
// session store is disabled, which does not affect readiness.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redis,
		version: version,
		started: time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status        string                      `json:"status"`
	Timestamp     time.Time                   `json:"timestamp"`
	Version       string                      `json:"version,omitempty"`
	UptimeSeconds int64                       `json:"uptimeSeconds"`
	Dependencies  map[string]DependencyStatus `json:"dependencies"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Check probes every dependency. Postgres down makes the service unhealthy;
// a failing session store only degrades it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Dependencies:  make(map[string]DependencyStatus, 2),
	}

	pg := DependencyStatus{Status: StatusUnhealthy, Message: "not configured"}
	if h.db != nil {
		pg = probe(ctx, h.pingPostgres)
		if pg.Status == StatusHealthy && poolExhausted(h.db.Stats()) {
			pg.Status = StatusDegraded
			pg.Message = "connection pool exhausted"
		}
	}
	status.Dependencies["postgres"] = pg
	if pg.Status != StatusHealthy {
		status.Status = pg.Status
	}

	sessions := DependencyStatus{Status: StatusDisabled}
	if h.redis != nil {
		sessions = probe(ctx, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
		if sessions.Status == StatusUnhealthy && status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	status.Dependencies["session_store"] = sessions

	return status
}

func probe(ctx context.Context, ping func(context.Context) error) DependencyStatus {
	start := time.Now()
	err := ping(ctx)
	status := DependencyStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}
	return status
}

func (h *HealthChecker) pingPostgres(ctx context.Context) error {
	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func poolExhausted(stats sql.DBStats) bool {
	return stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections
}

// Liveness returns 200 while the process is running
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns 503 while Postgres is unreachable
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
