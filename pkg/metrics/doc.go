// Package metrics provides Prometheus instrumentation for prioflow components.
//
// A Registry owns one set of collectors. Components receive a *Registry
// through their configuration and label every series with their own name,
// so several pools can share one registry:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		WorkerCount: 8,
//		Name:        "ingest",
//		Metrics:     m,
//	})
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Default returns a registry bound to prometheus.DefaultRegisterer that is
// created on first use.
//
// # Available Metrics
//
// Worker pool, labelled by pool_name:
//
//   - prioflow_workerpool_live_workers
//   - prioflow_workerpool_queued_tasks
//   - prioflow_workerpool_paused_workers
//   - prioflow_workerpool_tasks_submitted_total
//   - prioflow_workerpool_tasks_rejected_total
//   - prioflow_workerpool_tasks_completed_total
//   - prioflow_workerpool_tasks_failed_total
//   - prioflow_workerpool_tasks_cancelled_total
//   - prioflow_workerpool_control_tasks_total (also labelled by kind: stop, park)
//   - prioflow_workerpool_task_duration_seconds
//   - prioflow_workerpool_task_wait_seconds
//
// Scheduler, labelled by scheduler_name:
//
//   - prioflow_scheduler_entries
//   - prioflow_scheduler_submissions_total (also labelled by result)
package metrics
