package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/helios/pkg/observability"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

// SafeGo runs fn in a goroutine under a timeout derived from parentCtx.
// Errors and panics are logged under taskName and never propagate.
//
// Example:
//
//	async.SafeGo(context.WithoutCancel(ctx), logger, 5*time.Second, "last login", func(ctx context.Context) error {
//	    return store.UpdateLastLogin(ctx, userID, now)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		if err := Run(parentCtx, timeout, fn); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// Run executes fn on the calling goroutine under a timeout derived from
// parentCtx. A panic in fn is returned as an error.
func Run(parentCtx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()
	return run(ctx, fn)
}

// run executes fn, converting a panic into an error carrying the stack
func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// WorkerPool runs submitted tasks on a fixed number of workers, each task
// under its own timeout. Task errors are collected and returned by Close.
type WorkerPool struct {
	logger   *observability.Logger
	taskName string
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	work   chan func(context.Context) error
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewWorkerPool starts workers goroutines (at least one)
//
// Example:
//
//	pool := async.NewWorkerPool(ctx, logger, 4, "project metrics", 5*time.Second)
//	pool.Submit(func(ctx context.Context) error { return publish(ctx, id) })
//	errs := pool.Close(30 * time.Second)
func NewWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		logger:   logger.WithField("pool", taskName),
		taskName: taskName,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		work:     make(chan func(context.Context) error, workers*2),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit queues fn, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.work <- fn:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close stops accepting work and waits up to timeout for queued tasks to
// drain. It returns every task error; a timeout is reported as one more.
func (p *WorkerPool) Close(timeout time.Duration) []error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.work)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var timedOut bool
	select {
	case <-done:
	case <-time.After(timeout):
		timedOut = true
	}
	p.cancel()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	errs := append([]error(nil), p.errs...)
	if timedOut {
		errs = append(errs, fmt.Errorf("%s: worker pool shutdown timed out after %v", p.taskName, timeout))
	}
	return errs
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for fn := range p.work {
		if p.ctx.Err() != nil {
			p.record(p.ctx.Err())
			continue
		}

		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		err := run(ctx, fn)
		cancel()
		if err != nil {
			p.logger.WithError(err).Debug("task failed")
			p.record(err)
		}
	}
}

func (p *WorkerPool) record(err error) {
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}

// Batch applies fn to every item on a pool of workers and returns all errors.
// One failing item does not stop the others.
func Batch[T any](ctx context.Context, logger *observability.Logger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, logger, workers, taskName, timeout)
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return append(pool.Close(timeout), err)
		}
	}

	return pool.Close(timeout * time.Duration(len(items)+1))
}
