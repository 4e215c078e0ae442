package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	gfcontext "github.com/vnykmshr/prioflow/pkg/common/context"
	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
)

// Work is a unit of work producing a value. ctx is cancelled with cause
// errors.ErrInterrupted from pkg/common/errors when the task is interrupted; work that ignores ctx runs to
// completion.
type Work[T any] func(ctx context.Context) (T, error)

// Submit queues work on p and returns its future immediately.
//
// After shutdown has begun Submit returns a nil future and an error matching
// ErrRejected. A priority outside [PriorityLow, PriorityHigh] or nil work is
// refused with a *ValidationError.
func Submit[T any](p *Pool, work Work[T], opts ...SubmitOption) (*Future[T], error) {
	if work == nil {
		return nil, gferrors.NewValidationError("workerpool", "work", nil, "must not be nil")
	}

	o := submitOptions{priority: PriorityDefault}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.priority.Valid() {
		return nil, gferrors.NewValidationError("workerpool", "priority", o.priority, "outside the user range").
			WithHint("use a value between PriorityLow and PriorityHigh")
	}

	f := newFuture[T](p, o.priority, o.name)
	t := &task{priority: o.priority, kind: kindUser, future: f}
	t.run = func(ctx context.Context, w *worker) {
		runFuture(ctx, w, f, work, o.retry)
	}
	f.task = t

	if err := p.submit(t); err != nil {
		return nil, err
	}
	return f, nil
}

// Submit queues work returning an untyped value. Use the package-level
// Submit for a typed future.
func (p *Pool) Submit(work Work[any], opts ...SubmitOption) (*Future[any], error) {
	return Submit(p, work, opts...)
}

// SubmitWithPriority is Submit with WithPriority(prio).
func (p *Pool) SubmitWithPriority(work Work[any], prio Priority) (*Future[any], error) {
	return Submit(p, work, WithPriority(prio))
}

// Go queues work that produces no value.
func (p *Pool) Go(fn func(ctx context.Context) error, opts ...SubmitOption) (*Future[struct{}], error) {
	if fn == nil {
		return nil, gferrors.NewValidationError("workerpool", "work", nil, "must not be nil")
	}
	return Submit(p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
}

// Execute queues fn at default priority without exposing a future.
func (p *Pool) Execute(fn func()) error {
	if fn == nil {
		return gferrors.NewValidationError("workerpool", "work", nil, "must not be nil")
	}
	_, err := Submit(p, func(context.Context) (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
	return err
}

func runFuture[T any](ctx context.Context, w *worker, f *Future[T], work Work[T], rp *RetryPolicy) {
	if !f.begin(w) {
		return
	}

	var (
		v        T
		err      error
		resolved bool
	)
	// A fault in bookkeeping after begin must still resolve the future;
	// the panic is passed on to the worker loop.
	defer func() {
		if resolved {
			return
		}
		r := recover()
		if err == nil {
			err = &gferrors.PanicError{Value: r, Stack: debug.Stack()}
		}
		f.complete(v, err)
		if r != nil {
			panic(r)
		}
	}()

	p := w.pool
	info := f.info()
	start := time.Now()
	p.rec.started(start.Sub(info.Enqueued), p.queue.Len())
	if h := p.cfg.OnTaskStart; h != nil {
		p.callHook("OnTaskStart", func() { h(w.id, info) })
	}

	if rp != nil {
		v, err = retry(ctx, *rp, func(ctx context.Context) (T, error) { return callWork(ctx, work) })
	} else {
		v, err = callWork(ctx, work)
	}

	if gfcontext.IsInterrupted(ctx) {
		p.log.Debug("task interrupted", zap.Int("worker_id", w.id), zap.String("task_id", info.ID))
	}
	p.taskFinished(w, info, err, time.Since(start))
	resolved = true
	f.complete(v, err)
}

func callWork[T any](ctx context.Context, work Work[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &gferrors.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return work(ctx)
}

func (p *Pool) taskFinished(w *worker, info TaskInfo, err error, d time.Duration) {
	p.completed.Add(1)
	p.rec.finished(d, err)

	var perr *gferrors.PanicError
	if errors.As(err, &perr) {
		p.log.Error("task panicked",
			zap.Int("worker_id", w.id),
			zap.String("task_id", info.ID),
			zap.Stringer("priority", info.Priority),
			zap.Any("panic", perr.Value),
			zap.ByteString("stack", perr.Stack),
		)
		if h := p.cfg.PanicHandler; h != nil {
			p.callHook("PanicHandler", func() { h(info, perr.Value) })
		}
	}

	if h := p.cfg.OnTaskComplete; h != nil {
		p.callHook("OnTaskComplete", func() {
			h(w.id, Result{Task: info, Error: err, Duration: d, WorkerID: w.id})
		})
	}
}
