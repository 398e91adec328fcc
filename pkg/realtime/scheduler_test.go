package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/helios/pkg/observability"
)

func TestScheduler_RunJob(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(t, DefaultConfig(), newFakeStore())
	s, err := NewScheduler(svc, testLogger(), metrics)
	require.NoError(t, err)

	var deadline time.Time
	s.RunJob("ok", time.Minute, func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	s.RunJob(JobOperationalMetrics, time.Second, func(context.Context) error { return errors.New("db down") })
	s.RunJob(JobOperationalMetrics, time.Second, func(context.Context) error { return nil })

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BroadcastErrorsTotal.WithLabelValues(JobOperationalMetrics)))
	assert.Zero(t, testutil.ToFloat64(metrics.BroadcastErrorsTotal.WithLabelValues("ok")))
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	svc := newTestService(t, DefaultConfig(), newFakeStore())
	s, err := NewScheduler(svc, testLogger(), nil)
	require.NoError(t, err)
	s.Start()

	cancelled := make(chan struct{})
	go s.RunJob("slow", time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}
}

func TestScheduler_BroadcastsPeriodically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HealthInterval = time.Second
	cfg.MetricsInterval = time.Second
	store := newFakeStore(sampleProjects()...)
	svc := newTestService(t, cfg, store)
	c := connect(svc, nil)
	svc.Hub().Join(c, ProjectRoom("p1"))

	s, err := NewScheduler(svc, testLogger(), nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	seen := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for !seen[EventSystemHealthUpdate] || !seen[EventRealTimeMetrics] {
		select {
		case msg := <-c.Messages():
			var env Envelope
			require.NoError(t, json.Unmarshal(msg, &env))
			seen[env.Event] = true
		case <-timeout:
			t.Fatalf("missing periodic events, saw %v", seen)
		}
	}
}

func TestScheduler_FailuresDoNotStopLaterRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HealthInterval = time.Hour
	cfg.MetricsInterval = time.Second
	store := newFakeStore(sampleProjects()...)
	store.listErr = errors.New("connection refused")
	svc := newTestService(t, cfg, store)
	c := connect(svc, nil)
	svc.Hub().Join(c, ProjectRoom("p1"))

	s, err := NewScheduler(svc, testLogger(), nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	time.Sleep(1500 * time.Millisecond)
	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	select {
	case <-c.Messages():
	case <-time.After(3 * time.Second):
		t.Fatal("metrics loop stopped after a failed run")
	}
}

func TestCronLoggerFields(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"entry": 1, "next": "soon"}, fields([]interface{}{"entry", 1, "next", "soon", "dangling"}))
}
