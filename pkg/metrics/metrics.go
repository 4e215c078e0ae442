package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Control task kinds used as the "kind" label of ControlTasks.
const (
	KindStop = "stop"
	KindPark = "park"
)

// Submission outcomes used as the "result" label of SchedulerSubmissions.
const (
	ResultSubmitted = "submitted"
	ResultRejected  = "rejected"
)

// Registry holds all metric instances for prioflow components.
type Registry struct {
	// Worker pool gauges
	LiveWorkers   *prometheus.GaugeVec
	QueuedTasks   *prometheus.GaugeVec
	PausedWorkers *prometheus.GaugeVec

	// Worker pool counters
	TasksSubmitted *prometheus.CounterVec
	TasksRejected  *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksCancelled *prometheus.CounterVec
	ControlTasks   *prometheus.CounterVec

	// Worker pool latencies
	TaskDuration *prometheus.HistogramVec
	TaskWait     *prometheus.HistogramVec

	// Scheduler
	SchedulerEntries     *prometheus.GaugeVec
	SchedulerSubmissions *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry bound to prometheus.DefaultRegisterer,
// registering its collectors on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registerer: reg})
}

// NewRegistryWithConfig creates a registry from cfg. Registering two
// registries with the same namespace on one registerer panics.
func NewRegistryWithConfig(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	factory := promauto.With(cfg.Registerer)
	ns := cfg.Namespace
	labels := cfg.Labels

	pool := []string{"pool_name"}
	sched := []string{"scheduler_name"}

	return &Registry{
		LiveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "live_workers",
				Help:        "Number of worker loops currently running",
				ConstLabels: labels,
			},
			pool,
		),

		QueuedTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "queued_tasks",
				Help:        "Number of tasks waiting in the priority queue, control tasks included",
				ConstLabels: labels,
			},
			pool,
		),

		PausedWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "paused_workers",
				Help:        "Number of workers parked on the pause gate",
				ConstLabels: labels,
			},
			pool,
		),

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_submitted_total",
				Help:        "Total number of user tasks accepted into the queue",
				ConstLabels: labels,
			},
			pool,
		),

		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_rejected_total",
				Help:        "Total number of submissions refused after shutdown",
				ConstLabels: labels,
			},
			pool,
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_completed_total",
				Help:        "Total number of user tasks that ran to completion, failures included",
				ConstLabels: labels,
			},
			pool,
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_failed_total",
				Help:        "Total number of user tasks that completed with an error or panic",
				ConstLabels: labels,
			},
			pool,
		),

		TasksCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_cancelled_total",
				Help:        "Total number of user tasks removed from the queue before running",
				ConstLabels: labels,
			},
			pool,
		),

		ControlTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "control_tasks_total",
				Help:        "Total number of control tasks injected by the pool",
				ConstLabels: labels,
			},
			[]string{"pool_name", "kind"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "task_duration_seconds",
				Help:        "Time spent executing user tasks",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			pool,
		),

		TaskWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "task_wait_seconds",
				Help:        "Time user tasks spent queued before a worker picked them up",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			pool,
		),

		SchedulerEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "entries",
				Help:        "Number of entries currently scheduled",
				ConstLabels: labels,
			},
			sched,
		),

		SchedulerSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "submissions_total",
				Help:        "Total number of due entries handed to the worker pool",
				ConstLabels: labels,
			},
			[]string{"scheduler_name", "result"},
		),
	}
}
