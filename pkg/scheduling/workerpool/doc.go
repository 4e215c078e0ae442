/*
Package workerpool provides a priority-scheduling worker pool.

Tasks wait in a single priority queue and are taken by idle workers most
urgent first; tasks of equal priority leave in submission order. Every
submission returns a Future for the result, which can also withdraw the task
while it is still queued.

Basic usage:

	pool := workerpool.New(4)
	defer func() {
		_ = pool.Shutdown()
		_ = pool.AwaitTermination(context.Background())
	}()

	f, err := workerpool.Submit(pool, func(ctx context.Context) (int, error) {
		return compute(ctx)
	}, workerpool.WithPriority(workerpool.PriorityHigh))
	if err != nil {
		return err // pool is shutting down
	}

	v, err := f.Get()

Priorities:

Three named levels are accepted from callers: PriorityLow, PriorityDefault
and PriorityHigh, plus any value between them. The pool reserves one level
below and one above that range for its own control tasks.

Control Operations:

SetWorkerCount, Pause and the shutdown methods do not signal workers
directly. They queue control tasks that run on whichever worker takes them:

  - shrinking queues stop tasks ahead of all user work
  - Pause queues one park task per worker ahead of all user work; each blocks
    its worker on a gate that Resume opens
  - Shutdown queues stop tasks behind all user work, so the queue drains
    before workers exit
  - ShutdownNow cancels queued user tasks, queues stop tasks ahead of
    everything left and interrupts running work

Interruption:

Work receives a context that is cancelled with cause ErrInterrupted when the
task is interrupted by Future.Cancel(true) or ShutdownNow:

	f, _ := pool.Go(func(ctx context.Context) error {
		select {
		case <-time.After(time.Minute):
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
	f.Cancel(true)

Work that ignores its context runs to completion.

Errors:

A rejected submission returns a nil future and an error matching
ErrRejected. The work's own error is returned by Get; a panic is recovered
and returned as a *PanicError; Get on a cancelled future returns
ErrCanceled. No task failure ever stops a worker.

Configuration:

	cfg := workerpool.Config{
		WorkerCount: 8,
		Name:        "ingest",
		Logger:      logger,
		Metrics:     metrics.NewRegistry(reg),
		OnTaskComplete: func(workerID int, r workerpool.Result) {
			// ...
		},
	}
	pool, err := workerpool.NewWithConfig(cfg)

LoadConfig reads the same settings from PRIOFLOW_* environment variables.
*/
package workerpool
