package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/helios/pkg/observability"
)

// Job names used in logs and metrics
const (
	JobSystemHealth       = "system-health"
	JobOperationalMetrics = "operational-metrics"
)

// Scheduler runs the periodic broadcasts. Each run is bounded by the
// interval of its job, overlapping runs are skipped and panics are
// recovered so one failure never stops later runs.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *observability.Logger
	metrics *observability.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler registers the system-health and operational-metrics jobs
// at the intervals in the service config
func NewScheduler(service *Service, logger *observability.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	logger = logger.WithField("component", "scheduler")
	cl := cronLogger{logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		service: service,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobSystemHealth, service.cfg.HealthInterval, service.BroadcastSystemHealth},
		{JobOperationalMetrics, service.cfg.MetricsInterval, service.BroadcastOperationalMetrics},
	}
	for _, job := range jobs {
		job := job
		spec := fmt.Sprintf("@every %s", job.interval)
		if _, err := c.AddFunc(spec, func() { s.RunJob(job.name, job.interval, job.run) }); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	return s, nil
}

// RunJob executes one run of a job and records its outcome
func (s *Scheduler) RunJob(name string, timeout time.Duration, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	started := time.Now()
	err := run(ctx)
	s.metrics.ObserveJob(name, started, err)
	if err != nil {
		s.logger.WithError(err).WithField("job", name).Error("periodic broadcast failed")
	}
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{
		"health_interval":  s.service.cfg.HealthInterval.String(),
		"metrics_interval": s.service.cfg.MetricsInterval.String(),
	}).Info("realtime scheduler started")
}

// Stop prevents new runs, cancels running ones and waits for them to
// return or ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts Logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
