/*
Package scheduling groups the task execution packages of prioflow.

  - workerpool: Priority worker pool returning futures
  - scheduler: Time-based submission into a worker pool

Worker Pool:

Tasks run in priority order, highest first, FIFO among equals:

	pool := workerpool.New(4)

	f, _ := pool.Go(func(ctx context.Context) error {
		return sendEmail(ctx)
	}, workerpool.WithPriority(workerpool.PriorityHigh))

	if _, err := f.Get(); err != nil {
		log.Printf("email failed: %v", err)
	}

	_ = pool.Shutdown()
	_ = pool.AwaitTermination(context.Background())

The pool is controlled at runtime with SetWorkerCount, Pause and Resume.
Control requests travel through the same priority queue as user work, so a
pause overtakes queued tasks while a graceful shutdown waits behind them.

Task Scheduler:

	s, _ := scheduler.NewWithConfig(scheduler.Config{Pool: pool})
	_ = s.Start()
	defer func() { <-s.Stop() }()

	_ = s.ScheduleCron("digest", "0 0 9 * * MON-FRI", sendDigest,
		scheduler.WithPriority(workerpool.PriorityLow))
*/
package scheduling
