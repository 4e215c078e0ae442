package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
)

type futureState int

const (
	statePending futureState = iota
	stateRunning
	stateDone
	stateCancelled
)

// Future is the handle returned by Submit. It resolves exactly once, either
// done (the work ran, successfully or not) or cancelled (the task was removed
// from the queue before it started). Both states are final.
type Future[T any] struct {
	id       string
	name     string
	priority Priority
	pool     *Pool
	task     *task
	done     chan struct{}

	mu     sync.Mutex
	state  futureState
	value  T
	err    error
	worker *worker // non-nil only while the work runs
}

func newFuture[T any](p *Pool, prio Priority, name string) *Future[T] {
	return &Future[T]{
		id:       uuid.NewString(),
		name:     name,
		priority: prio,
		pool:     p,
		done:     make(chan struct{}),
	}
}

// ID returns the unique identifier of the task.
func (f *Future[T]) ID() string { return f.id }

// Priority returns the priority the task was submitted with.
func (f *Future[T]) Priority() Priority { return f.priority }

// Done returns a channel that is closed once the future is done or cancelled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the work has run to completion.
func (f *Future[T]) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == stateDone
}

// IsCancelled reports whether the task was removed before it started.
func (f *Future[T]) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == stateCancelled
}

// Cancel tries to withdraw the task from the queue. It returns true only if
// the task had not started; the future is then cancelled.
//
// If the task is already running and mayInterrupt is set, the context passed
// to the work is cancelled with ErrInterrupted. The task still completes
// through the normal path and Cancel returns false.
func (f *Future[T]) Cancel(mayInterrupt bool) bool {
	f.mu.Lock()
	if f.state == stateDone || f.state == stateCancelled {
		f.mu.Unlock()
		return false
	}
	f.mu.Unlock()

	if f.pool.queue.Remove(f.task) {
		f.pool.cancelled(f.task)
		return true
	}

	if mayInterrupt {
		f.mu.Lock()
		w := f.worker
		f.mu.Unlock()
		if w != nil {
			w.interruptTask(f.task)
		}
	}
	return false
}

// Get blocks until the future resolves and returns the work's value and
// error. A cancelled future returns ErrCanceled.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.result()
}

// GetWithTimeout is Get bounded by d. It returns ErrTimeout if the future
// has not resolved in time; the task itself is left alone.
func (f *Future[T]) GetWithTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result()
	case <-timer.C:
		var zero T
		return zero, gferrors.ErrTimeout
	}
}

// GetWithContext is Get bounded by ctx. It returns ctx.Err() if ctx is done
// first.
func (f *Future[T]) GetWithContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == stateCancelled {
		var zero T
		return zero, gferrors.ErrCanceled
	}
	return f.value, f.err
}

func (f *Future[T]) info() TaskInfo {
	return TaskInfo{
		ID:       f.id,
		Name:     f.name,
		Priority: f.priority,
		Enqueued: f.task.enqueued,
	}
}

// cancelQueued is called once the task has been removed from the queue.
func (f *Future[T]) cancelQueued() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != statePending {
		return
	}
	f.state = stateCancelled
	close(f.done)
}

// begin records w as the running worker. It reports false if the future
// already resolved.
func (f *Future[T]) begin(w *worker) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != statePending {
		return false
	}
	f.state = stateRunning
	f.worker = w
	return true
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.value = v
	f.err = err
	f.worker = nil
	f.state = stateDone
	close(f.done)
}
