package workerpool

import (
	"time"

	"github.com/vnykmshr/prioflow/pkg/metrics"
)

// recorder forwards pool events to a metrics.Registry. The zero value
// records nothing.
type recorder struct {
	reg  *metrics.Registry
	name string
}

func newRecorder(reg *metrics.Registry, name string) recorder {
	return recorder{reg: reg, name: name}
}

func (r recorder) submitted(queued int) {
	if r.reg == nil {
		return
	}
	r.reg.TasksSubmitted.WithLabelValues(r.name).Inc()
	r.reg.QueuedTasks.WithLabelValues(r.name).Set(float64(queued))
}

func (r recorder) rejected() {
	if r.reg == nil {
		return
	}
	r.reg.TasksRejected.WithLabelValues(r.name).Inc()
}

func (r recorder) cancelled(n int) {
	if r.reg == nil || n == 0 {
		return
	}
	r.reg.TasksCancelled.WithLabelValues(r.name).Add(float64(n))
}

func (r recorder) control(kind taskKind, n int) {
	if r.reg == nil || n == 0 {
		return
	}
	r.reg.ControlTasks.WithLabelValues(r.name, kind.String()).Add(float64(n))
}

func (r recorder) started(wait time.Duration, queued int) {
	if r.reg == nil {
		return
	}
	r.reg.TaskWait.WithLabelValues(r.name).Observe(wait.Seconds())
	r.reg.QueuedTasks.WithLabelValues(r.name).Set(float64(queued))
}

func (r recorder) finished(d time.Duration, err error) {
	if r.reg == nil {
		return
	}
	r.reg.TaskDuration.WithLabelValues(r.name).Observe(d.Seconds())
	r.reg.TasksCompleted.WithLabelValues(r.name).Inc()
	if err != nil {
		r.reg.TasksFailed.WithLabelValues(r.name).Inc()
	}
}

func (r recorder) queued(n int) {
	if r.reg == nil {
		return
	}
	r.reg.QueuedTasks.WithLabelValues(r.name).Set(float64(n))
}

func (r recorder) live(n int) {
	if r.reg == nil {
		return
	}
	r.reg.LiveWorkers.WithLabelValues(r.name).Set(float64(n))
}

func (r recorder) paused(n int64) {
	if r.reg == nil {
		return
	}
	r.reg.PausedWorkers.WithLabelValues(r.name).Set(float64(n))
}
