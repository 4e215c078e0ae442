/*
Package scheduler feeds a priority worker pool on a timetable.

Entries are one-shot (Schedule, ScheduleAfter), fixed-interval
(ScheduleRepeating) or cron driven (ScheduleCron). Each carries a pool
priority; when an entry falls due the scheduler submits its job with that
priority, so a late high-priority report still overtakes a backlog of
low-priority housekeeping.

	pool := workerpool.New(2)
	s, _ := scheduler.NewWithConfig(scheduler.Config{Pool: pool})
	_ = s.Start()
	defer func() { <-s.Stop() }()

	_ = s.ScheduleCron("reindex", "0 0/5 * * * *", reindex,
		scheduler.WithPriority(workerpool.PriorityLow))
	_ = s.ScheduleRepeating("heartbeat", heartbeat, 10*time.Second,
		scheduler.WithPriority(workerpool.PriorityHigh))

Cron expressions have six fields with seconds first. Descriptors such as
"@hourly" or "@every 90s" are accepted as well.

Due entries are only submitted; execution order, retries and cancellation
belong to the pool. A submission rejected because the pool is shutting down
is logged and counted, and the entry keeps its schedule.

When Config.Pool is nil the scheduler creates a four-worker pool of its own
and shuts it down on Stop.
*/
package scheduler
