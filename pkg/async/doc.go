// Package async provides goroutine helpers with panic recovery and per-task
// timeouts.
//
// SafeGo fires a single task and logs its failure. Run executes a task
// inline with the same timeout and panic handling. WorkerPool and Batch fan
// work out over a bounded number of goroutines and collect errors, so one
// failing item never stops the rest:
//
//	errs := async.Batch(ctx, logger, projects, 4, "project metrics", 5*time.Second,
//		func(ctx context.Context, p *projects.Project) error {
//			return publish(ctx, p)
//		})
//
// The realtime package uses Run for socket event handlers that touch the
// database and Batch for the periodic per-project metrics broadcast.
package async
