package realtime

import (
	"context"
	"database/sql"
	"runtime"
	"time"
)

// MemoryUsage is heap usage in megabytes
type MemoryUsage struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
}

// SystemHealth is the body of system-health and system-health-update
type SystemHealth struct {
	Uptime    float64     `json:"uptime"`
	Memory    MemoryUsage `json:"memory"`
	Database  string      `json:"database"`
	API       string      `json:"api"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthReporter produces a system health snapshot
type HealthReporter interface {
	Check(ctx context.Context) (*SystemHealth, error)
}

// Execer is the subset of *sql.DB used to probe the database
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SystemHealthProvider reports process and database health
type SystemHealthProvider struct {
	db      Execer
	started time.Time
	now     func() time.Time
}

// NewSystemHealthProvider measures uptime from now; db may be nil
func NewSystemHealthProvider(db Execer) *SystemHealthProvider {
	return &SystemHealthProvider{db: db, started: time.Now(), now: time.Now}
}

// Check returns a snapshot. A failing database is reported as unhealthy,
// not as an error.
func (p *SystemHealthProvider) Check(ctx context.Context) (*SystemHealth, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	database := "healthy"
	if p.db == nil {
		database = "unhealthy"
	} else if _, err := p.db.ExecContext(ctx, "SELECT 1"); err != nil {
		database = "unhealthy"
	}

	now := p.now()
	return &SystemHealth{
		Uptime: now.Sub(p.started).Seconds(),
		Memory: MemoryUsage{
			Used:  toMB(mem.HeapAlloc),
			Total: toMB(mem.HeapSys),
		},
		Database:  database,
		API:       "healthy",
		Timestamp: now,
	}, nil
}

func toMB(b uint64) uint64 {
	return (b + 512*1024) / (1024 * 1024)
}
