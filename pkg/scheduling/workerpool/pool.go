package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
	"github.com/vnykmshr/prioflow/pkg/common/validation"
	"github.com/vnykmshr/prioflow/pkg/queue"
	"github.com/vnykmshr/prioflow/pkg/semaphore"
)

// Pool runs queued tasks on a resizable set of workers in priority order.
//
// Resizing, pausing and shutdown are carried out by control tasks that flow
// through the same queue as user work: stop tasks at a priority above or
// below every user level, and park tasks that block a worker on the pause
// gate until Resume.
type Pool struct {
	cfg   Config
	name  string
	log   *zap.Logger
	rec   recorder
	queue *queue.Queue[*task]
	gate  *semaphore.Semaphore

	// submitMu makes the shutdown check and the enqueue of a submission one
	// step with respect to Shutdown and ShutdownNow.
	submitMu sync.RWMutex
	shutdown atomic.Bool

	// ctrlMu serializes control operations.
	ctrlMu       sync.Mutex
	pausePermits int

	mu           sync.Mutex
	live         int
	pendingStops int // stop tasks queued or running, not yet retired
	nextWorkerID int
	workers      map[*worker]struct{}
	termCh       chan struct{}
	terminated   bool

	parked    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
}

// New creates a pool with workerCount workers. It panics if workerCount is
// not positive; use NewWithConfig to handle the error instead.
func New(workerCount int) *Pool {
	p, err := NewWithConfig(Config{WorkerCount: workerCount})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool and starts its workers.
func NewWithConfig(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	gate, err := semaphore.New(0)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:     cfg,
		name:    cfg.Name,
		log:     cfg.Logger.With(zap.String("pool", cfg.Name)),
		rec:     newRecorder(cfg.Metrics, cfg.Name),
		queue:   queue.New(more),
		gate:    gate,
		workers: make(map[*worker]struct{}),
		termCh:  make(chan struct{}),
	}

	p.mu.Lock()
	p.startWorkersLocked(cfg.WorkerCount)
	p.mu.Unlock()

	p.log.Info("worker pool started", zap.Int("workers", cfg.WorkerCount))
	return p, nil
}

// SetWorkerCount grows or shrinks the pool to n workers. Growth is
// immediate; shrinking queues stop tasks ahead of all user work, so it takes
// effect as soon as workers finish their current task.
//
// Growing a pool that is shutting down returns ErrClosed.
func (p *Pool) SetWorkerCount(n int) error {
	if err := validation.ValidateNonNegative("workerpool", "workerCount", n); err != nil {
		return err
	}

	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	p.mu.Lock()
	current := p.effectiveLocked()
	diff := n - current
	if diff > 0 {
		if p.shutdown.Load() {
			p.mu.Unlock()
			return fmt.Errorf("workerpool %s: cannot add workers: %w", p.name, gferrors.ErrClosed)
		}
		p.startWorkersLocked(diff)
	}
	p.mu.Unlock()

	if diff < 0 {
		if err := p.injectStops(-diff, priorityImmediate); err != nil {
			return err
		}
	}

	if diff != 0 {
		p.log.Info("worker count changed", zap.Int("from", current), zap.Int("to", n))
	}
	return nil
}

// Pause parks every current worker once it finishes its running task. Queued
// user tasks stay queued until Resume.
//
// The worker count is sampled once; workers added afterwards are not parked.
func (p *Pool) Pause() error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	if p.shutdown.Load() {
		return fmt.Errorf("workerpool %s: cannot pause: %w", p.name, gferrors.ErrClosed)
	}

	p.mu.Lock()
	n := p.effectiveLocked()
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		if err := p.enqueue(newParkTask(p)); err != nil {
			return err
		}
		p.pausePermits++
		p.rec.control(kindPark, 1)
	}

	p.log.Info("pause requested", zap.Int("workers", n))
	return nil
}

// Resume releases every worker parked by earlier Pause calls, including
// park tasks that have not run yet.
func (p *Pool) Resume() {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	n := p.pausePermits
	p.pausePermits = 0
	p.gate.ReleaseN(n)

	if n > 0 {
		p.log.Info("resumed", zap.Int("workers", n))
	}
}

// Shutdown stops accepting work and lets the queue drain: one stop task per
// worker is queued behind all user work. It does not wait; use
// AwaitTermination. A paused pool only drains after Resume.
//
// Calling Shutdown more than once has no further effect.
func (p *Pool) Shutdown() error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	if !p.markShutdown() {
		return nil
	}

	p.mu.Lock()
	n := p.effectiveLocked()
	p.mu.Unlock()

	p.log.Info("shutdown requested", zap.Int("workers", n), zap.Int("queued", p.queue.Len()))
	return p.injectStops(n, priorityDeferred)
}

// ShutdownNow stops accepting work, cancels every queued user task, releases
// paused workers and interrupts running work. It returns the number of
// futures it cancelled.
func (p *Pool) ShutdownNow() (int, error) {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	p.markShutdown()

	removed := p.queue.RemoveFunc(func(t *task) bool { return t.kind != kindStop })
	cancelled, parks := 0, 0
	for _, t := range removed {
		switch t.kind {
		case kindUser:
			t.future.cancelQueued()
			cancelled++
		case kindPark:
			parks++
		}
	}
	p.rec.cancelled(cancelled)

	if release := p.pausePermits - parks; release > 0 {
		p.gate.ReleaseN(release)
	}
	p.pausePermits = 0

	p.mu.Lock()
	n := p.effectiveLocked()
	workers := make([]*worker, 0, len(p.workers))
	for w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	err := p.injectStops(n, priorityImmediate)
	for _, w := range workers {
		w.interruptAll()
	}
	p.rec.queued(p.queue.Len())

	p.log.Info("immediate shutdown", zap.Int("cancelled", cancelled), zap.Int("workers", len(workers)))
	return cancelled, err
}

// AwaitTermination blocks until no worker is running or ctx is done.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	p.mu.Lock()
	ch := p.termCh
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitTerminationTimeout is AwaitTermination bounded by d. It returns
// ErrTimeout if workers are still running when d elapses.
func (p *Pool) AwaitTerminationTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	if err := p.AwaitTermination(ctx); err != nil {
		return fmt.Errorf("workerpool %s: %d workers still running: %w", p.name, p.LiveWorkers(), gferrors.ErrTimeout)
	}
	return nil
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string { return p.name }

// LiveWorkers returns the number of running worker loops.
func (p *Pool) LiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// ParkedWorkers returns the number of workers currently held by Pause.
func (p *Pool) ParkedWorkers() int {
	return int(p.parked.Load())
}

// QueueSize returns the number of queued tasks, control tasks included.
func (p *Pool) QueueSize() int {
	return p.queue.Len()
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (p *Pool) IsShutdown() bool {
	return p.shutdown.Load()
}

// IsTerminated reports whether the pool is shut down and every worker has
// exited.
func (p *Pool) IsTerminated() bool {
	return p.shutdown.Load() && p.LiveWorkers() == 0
}

// TotalSubmitted returns the number of user tasks accepted.
func (p *Pool) TotalSubmitted() int64 {
	return p.submitted.Load()
}

// TotalCompleted returns the number of user tasks that ran, failures included.
func (p *Pool) TotalCompleted() int64 {
	return p.completed.Load()
}

func (p *Pool) submit(t *task) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.shutdown.Load() {
		p.rec.rejected()
		return fmt.Errorf("workerpool %s: %w", p.name, gferrors.ErrRejected)
	}

	t.enqueued = time.Now()
	p.submitted.Add(1)
	if err := p.enqueue(t); err != nil {
		p.submitted.Add(-1)
		return err
	}
	p.rec.submitted(p.queue.Len())
	return nil
}

func (p *Pool) enqueue(t *task) error {
	if err := p.queue.Enqueue(t); err != nil {
		p.log.Error("task queue refused insertion", zap.Stringer("kind", t.kind), zap.Error(err))
		return gferrors.NewOperationError("workerpool", "enqueue", fmt.Errorf("%w: %w", gferrors.ErrQueueInvariant, err))
	}
	return nil
}

// markShutdown flips the shutdown flag and reports whether this call did it.
func (p *Pool) markShutdown() bool {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	return p.shutdown.CompareAndSwap(false, true)
}

// cancelled finishes a user task that Future.Cancel removed from the queue.
func (p *Pool) cancelled(t *task) {
	t.future.cancelQueued()
	p.rec.cancelled(1)
	p.rec.queued(p.queue.Len())
	p.log.Debug("task cancelled", zap.String("task_id", t.future.info().ID))
}

func (p *Pool) injectStops(n int, prio Priority) error {
	for i := 0; i < n; i++ {
		p.mu.Lock()
		p.pendingStops++
		p.mu.Unlock()

		if err := p.enqueue(newStopTask(prio)); err != nil {
			p.mu.Lock()
			p.pendingStops--
			p.mu.Unlock()
			return err
		}
		p.rec.control(kindStop, 1)
	}
	return nil
}

func (p *Pool) park(ctx context.Context, w *worker) {
	p.rec.paused(p.parked.Add(1))
	p.log.Debug("worker parked", zap.Int("worker_id", w.id))

	if err := p.gate.Acquire(ctx); err != nil {
		p.log.Debug("parked worker interrupted", zap.Int("worker_id", w.id))
	}

	p.rec.paused(p.parked.Add(-1))
}

// effectiveLocked is the worker count once queued stop tasks have run.
// Must be called with p.mu held.
func (p *Pool) effectiveLocked() int {
	return p.live - p.pendingStops
}

// Must be called with p.mu held.
func (p *Pool) startWorkersLocked(n int) {
	if p.terminated {
		p.termCh = make(chan struct{})
		p.terminated = false
	}
	for i := 0; i < n; i++ {
		w := &worker{id: p.nextWorkerID, pool: p}
		p.nextWorkerID++
		p.workers[w] = struct{}{}
		p.live++
		go w.run()
	}
	p.rec.live(p.live)
}

// workerExited retires w together with the stop task that ended it.
func (p *Pool) workerExited(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.workers, w)
	p.live--
	p.pendingStops--
	p.rec.live(p.live)

	if p.live == 0 && !p.terminated {
		close(p.termCh)
		p.terminated = true
	}
}

func (p *Pool) callHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("hook panicked", zap.String("hook", name), zap.Any("panic", r))
		}
	}()
	fn()
}
