package workerpool

import (
	"context"
	"time"
)

type taskKind int

const (
	kindUser taskKind = iota
	kindStop
	kindPark
)

func (k taskKind) String() string {
	switch k {
	case kindStop:
		return "stop"
	case kindPark:
		return "park"
	}
	return "user"
}

// task is one entry of the pool queue. User tasks own a future; control
// tasks act on the worker that runs them.
type task struct {
	priority Priority
	kind     taskKind
	enqueued time.Time
	run      func(ctx context.Context, w *worker)

	// future is set for user tasks only.
	future queuedFuture
}

// queuedFuture is the part of a Future the pool needs while the task is
// still in the queue.
type queuedFuture interface {
	info() TaskInfo
	cancelQueued()
}

// TaskInfo describes a user task to hooks.
type TaskInfo struct {
	ID       string
	Name     string
	Priority Priority
	Enqueued time.Time
}

// Result is passed to Config.OnTaskComplete after a user task finishes.
type Result struct {
	Task TaskInfo

	// Error is the work's error, a *PanicError if it panicked, or nil.
	Error error

	// Duration is how long the work ran, retries included.
	Duration time.Duration

	// WorkerID identifies which worker executed the task.
	WorkerID int
}

func newStopTask(prio Priority) *task {
	return &task{
		priority: prio,
		kind:     kindStop,
		run: func(_ context.Context, w *worker) {
			w.stopped = true
		},
	}
}

func newParkTask(p *Pool) *task {
	return &task{
		priority: priorityImmediate,
		kind:     kindPark,
		run: func(ctx context.Context, w *worker) {
			p.park(ctx, w)
		},
	}
}
