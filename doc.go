/*
Package prioflow provides a priority-scheduling worker pool and the pieces
around it.

Scheduling (pkg/scheduling):
  - workerpool: Priority worker pool with futures, pause/resume, live resizing and graceful or immediate shutdown
  - scheduler: One-shot, interval and cron submission into a pool

Building blocks:
  - queue: Blocking priority queue with removal by identity
  - semaphore: Counting semaphore that may start at zero and grow past its initial count
  - metrics: Prometheus collectors shared by pools and schedulers
  - common: Errors, validation helpers and interruptible contexts

Example usage:

	import "github.com/vnykmshr/prioflow/pkg/scheduling/workerpool"

	pool := workerpool.New(4)
	defer func() {
		_ = pool.Shutdown()
		_ = pool.AwaitTermination(context.Background())
	}()

	report, _ := workerpool.Submit(pool, buildReport, workerpool.WithPriority(workerpool.PriorityHigh))
	summary, err := report.Get()
*/
package prioflow
