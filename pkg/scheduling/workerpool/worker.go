package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	gfcontext "github.com/vnykmshr/prioflow/pkg/common/context"
)

// worker runs one loop: take the most urgent task, run it, repeat until a
// stop task has run on this worker.
type worker struct {
	id   int
	pool *Pool

	mu        sync.Mutex
	current   *task
	interrupt func()

	// stopped is only touched by the worker goroutine.
	stopped bool
}

func (w *worker) run() {
	p := w.pool
	log := p.log.With(zap.Int("worker_id", w.id))

	log.Debug("worker started")
	if h := p.cfg.OnWorkerStart; h != nil {
		p.callHook("OnWorkerStart", func() { h(w.id) })
	}

	for !w.stopped {
		w.step(log)
	}

	if h := p.cfg.OnWorkerStop; h != nil {
		p.callHook("OnWorkerStop", func() { h(w.id) })
	}
	log.Debug("worker stopped")
	p.workerExited(w)
}

// step takes and runs a single task. Every step gets a fresh context so an
// interruption aimed at one task never leaks into the next.
func (w *worker) step(log *zap.Logger) {
	ctx, interrupt := gfcontext.WithInterrupt(context.Background())
	w.mu.Lock()
	w.interrupt = interrupt
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.current = nil
		w.interrupt = nil
		w.mu.Unlock()
		interrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered fault in worker loop", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	t, err := w.pool.queue.Dequeue(ctx)
	if err != nil {
		// Interrupted while idle: re-check the stop flag.
		return
	}

	w.mu.Lock()
	w.current = t
	w.mu.Unlock()

	t.run(ctx, w)
}

// interruptTask cancels the running context only if t is what this worker
// is executing.
func (w *worker) interruptTask(t *task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == t && w.interrupt != nil {
		w.interrupt()
	}
}

// interruptAll cancels whatever the worker is doing, idle or not.
func (w *worker) interruptAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.interrupt != nil {
		w.interrupt()
	}
}
