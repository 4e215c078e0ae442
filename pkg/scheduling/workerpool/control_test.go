package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/prioflow/internal/testutil"
	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
)

func TestSetWorkerCount(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})

	testutil.AssertNoError(t, p.SetWorkerCount(6))
	testutil.AssertEqual(t, p.LiveWorkers(), 6)

	testutil.AssertNoError(t, p.SetWorkerCount(2))
	testutil.Eventually(t, func() bool { return p.LiveWorkers() == 2 }, time.Second, time.Millisecond)

	testutil.AssertNoError(t, p.SetWorkerCount(0))
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(time.Second))
	testutil.AssertEqual(t, p.LiveWorkers(), 0)
	testutil.AssertEqual(t, p.IsTerminated(), false)

	// A pool with no workers can be grown again and serves work.
	testutil.AssertNoError(t, p.SetWorkerCount(3))
	testutil.AssertEqual(t, p.LiveWorkers(), 3)
	f, err := p.Submit(func(ctx context.Context) (any, error) { return "back", nil })
	testutil.AssertNoError(t, err)
	v, err := f.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, any("back"))

	err = p.SetWorkerCount(-1)
	testutil.AssertEqual(t, gferrors.IsValidationError(err), true)
	testutil.AssertEqual(t, p.LiveWorkers(), 3)
}

func TestSetWorkerCountPreemptsBacklog(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		_, err := p.Submit(blockingWork(started, release))
		testutil.AssertNoError(t, err)
	}
	waitStarted(t, started, 2)

	var ran atomic.Int32
	backlog := make([]*Future[any], 0, 10)
	for i := 0; i < 10; i++ {
		f, err := p.SubmitWithPriority(func(ctx context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}, PriorityHigh)
		testutil.AssertNoError(t, err)
		backlog = append(backlog, f)
	}

	// Shrink while both workers are busy; the stop task outranks the backlog.
	testutil.AssertNoError(t, p.SetWorkerCount(1))
	close(release)

	for _, f := range backlog {
		_, err := f.GetWithTimeout(testutil.TestTimeout)
		testutil.AssertNoError(t, err)
	}
	testutil.AssertEqual(t, ran.Load(), int32(10))
	testutil.Eventually(t, func() bool { return p.LiveWorkers() == 1 }, time.Second, time.Millisecond)
}

func TestSetWorkerCountConverges(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 4})

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		_, err := p.Submit(blockingWork(started, release))
		testutil.AssertNoError(t, err)
	}
	waitStarted(t, started, 4)

	// Repeated calls while no stop task has run yet must not over-shrink.
	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, p.SetWorkerCount(1))
	}
	close(release)

	testutil.Eventually(t, func() bool { return p.LiveWorkers() == 1 }, time.Second, time.Millisecond)
	testutil.Never(t, func() bool { return p.LiveWorkers() != 1 }, 50*time.Millisecond, 5*time.Millisecond)

	// Growing while shrink is pending counts the pending stops.
	testutil.AssertNoError(t, p.SetWorkerCount(3))
	testutil.Eventually(t, func() bool { return p.LiveWorkers() == 3 }, time.Second, time.Millisecond)
}

func TestSetWorkerCountFromTask(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 1})

	f, err := p.Go(func(ctx context.Context) error {
		return p.SetWorkerCount(3)
	})
	testutil.AssertNoError(t, err)
	_, err = f.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p.LiveWorkers(), 3)

	// Shrinking to zero from inside a task stops the calling worker too,
	// once its task returns.
	f, err = p.Go(func(ctx context.Context) error {
		return p.SetWorkerCount(0)
	})
	testutil.AssertNoError(t, err)
	_, err = f.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(time.Second))
}

func TestSetWorkerCountAfterShutdown(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})
	testutil.AssertNoError(t, p.Shutdown())

	testutil.AssertErrorIs(t, p.SetWorkerCount(5), gferrors.ErrClosed)
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(time.Second))
}

func TestPauseResume(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 4})

	for i := 0; i < 10; i++ {
		_, err := p.Submit(sleepWork(50 * time.Millisecond))
		testutil.AssertNoError(t, err)
	}
	low, err := p.SubmitWithPriority(sleepWork(0), PriorityLow)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, p.Pause())

	time.Sleep(10 * time.Millisecond)
	testutil.AssertEqual(t, low.IsDone(), false)

	// Every worker parks after its current task; the backlog stays queued.
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 4 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, low.IsDone(), false)
	testutil.AssertEqual(t, p.ParkedWorkers(), 4)

	p.Resume()
	_, err = low.GetWithTimeout(testutil.TestTimeout)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, low.IsDone(), true)
	testutil.Eventually(t, func() bool { return p.TotalCompleted() == 11 }, time.Second, time.Millisecond)
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 0 }, time.Second, time.Millisecond)
}

func TestPauseThenResumeImmediately(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 3})

	testutil.AssertNoError(t, p.Pause())
	p.Resume()

	f, err := p.Submit(func(ctx context.Context) (any, error) { return "ran", nil })
	testutil.AssertNoError(t, err)
	v, err := f.GetWithTimeout(testutil.TestTimeout)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, any("ran"))
	testutil.Eventually(t, func() bool { return p.QueueSize() == 0 }, time.Second, time.Millisecond)
}

func TestResumeWithoutPause(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 1})
	p.Resume()

	testutil.AssertNoError(t, p.Pause())
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 1 }, time.Second, time.Millisecond)
	p.Resume()
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 0 }, time.Second, time.Millisecond)
}

func TestPauseAfterShutdown(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 1})
	testutil.AssertNoError(t, p.Shutdown())
	testutil.AssertErrorIs(t, p.Pause(), gferrors.ErrClosed)
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})

	long, err := p.Submit(sleepWork(300 * time.Millisecond))
	testutil.AssertNoError(t, err)

	var drained atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := p.SubmitWithPriority(func(ctx context.Context) (any, error) {
			drained.Add(1)
			return nil, nil
		}, PriorityLow)
		testutil.AssertNoError(t, err)
	}

	testutil.AssertNoError(t, p.Shutdown())
	testutil.AssertEqual(t, p.IsShutdown(), true)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, p.AwaitTermination(ctx))

	testutil.AssertEqual(t, long.IsDone(), true)
	testutil.AssertEqual(t, drained.Load(), int32(5))
	testutil.AssertEqual(t, p.IsTerminated(), true)
	testutil.AssertEqual(t, p.LiveWorkers(), 0)

	f, err := p.Submit(sleepWork(0))
	testutil.AssertErrorIs(t, err, gferrors.ErrRejected)
	testutil.AssertErrorIs(t, err, gferrors.ErrClosed)
	if f != nil {
		t.Error("expected nil future for a rejected submission")
	}
	testutil.AssertErrorIs(t, p.Execute(func() {}), gferrors.ErrRejected)
}

func TestShutdownIdempotent(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 3})

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, p.Shutdown())
	}
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(time.Second))
	testutil.AssertEqual(t, p.QueueSize(), 0)
}

func TestAwaitTerminationTimeout(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	_, err := p.Submit(blockingWork(started, release))
	testutil.AssertNoError(t, err)
	waitStarted(t, started, 1)

	testutil.AssertNoError(t, p.Shutdown())
	err = p.AwaitTerminationTimeout(30 * time.Millisecond)
	testutil.AssertErrorIs(t, err, gferrors.ErrTimeout)

	// The timeout leaves the pool as it was.
	testutil.Eventually(t, func() bool { return p.LiveWorkers() == 1 }, time.Second, time.Millisecond)
	testutil.AssertEqual(t, p.IsTerminated(), false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	testutil.AssertErrorIs(t, p.AwaitTermination(ctx), context.DeadlineExceeded)

	close(release)
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))
	testutil.AssertEqual(t, p.IsTerminated(), true)
}

func TestShutdownWhilePaused(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 2})

	testutil.AssertNoError(t, p.Pause())
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 2 }, time.Second, time.Millisecond)

	f, err := p.Submit(sleepWork(0))
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, p.Shutdown())

	testutil.AssertErrorIs(t, p.AwaitTerminationTimeout(50*time.Millisecond), gferrors.ErrTimeout)
	testutil.AssertEqual(t, f.IsDone(), false)

	p.Resume()
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))
	testutil.AssertEqual(t, f.IsDone(), true)
}

func TestShutdownNow(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 1})

	started := make(chan struct{}, 1)
	running, err := p.Submit(blockingWork(started, nil))
	testutil.AssertNoError(t, err)
	waitStarted(t, started, 1)

	queued := make([]*Future[any], 5)
	for i := range queued {
		queued[i], err = p.Submit(sleepWork(time.Hour))
		testutil.AssertNoError(t, err)
	}

	n, err := p.ShutdownNow()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 5)

	for _, f := range queued {
		testutil.AssertEqual(t, f.IsCancelled(), true)
		_, err := f.Get()
		testutil.AssertErrorIs(t, err, gferrors.ErrCanceled)
	}

	_, err = running.GetWithTimeout(testutil.TestTimeout)
	testutil.AssertErrorIs(t, err, gferrors.ErrInterrupted)
	testutil.AssertEqual(t, running.IsDone(), true)

	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))
	testutil.AssertEqual(t, p.IsTerminated(), true)

	_, err = p.Submit(sleepWork(0))
	testutil.AssertErrorIs(t, err, gferrors.ErrRejected)

	// A second call finds nothing left to cancel.
	n, err = p.ShutdownNow()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 0)
}

func TestShutdownNowWhilePaused(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 3})

	testutil.AssertNoError(t, p.Pause())
	testutil.Eventually(t, func() bool { return p.ParkedWorkers() == 3 }, time.Second, time.Millisecond)
	// Park tasks that have not run yet are withdrawn too.
	testutil.AssertNoError(t, p.Pause())

	f, err := p.Submit(sleepWork(0))
	testutil.AssertNoError(t, err)

	n, err := p.ShutdownNow()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 1)
	testutil.AssertEqual(t, f.IsCancelled(), true)

	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))
	testutil.AssertEqual(t, p.ParkedWorkers(), 0)
}

func TestShutdownNowAfterShutdown(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 1})

	started := make(chan struct{}, 1)
	_, err := p.Submit(blockingWork(started, nil))
	testutil.AssertNoError(t, err)
	waitStarted(t, started, 1)
	backlog, err := p.Submit(sleepWork(time.Hour))
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, p.Shutdown())
	n, err := p.ShutdownNow()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 1)
	testutil.AssertEqual(t, backlog.IsCancelled(), true)
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))
}

// Every submission either is rejected or resolves; none is stranded by a
// shutdown racing with it.
func TestSubmitRacingShutdown(t *testing.T) {
	p := newTestPool(t, Config{WorkerCount: 4})

	var (
		mu       sync.Mutex
		accepted []*Future[int]
		rejected atomic.Int32
	)

	var g errgroup.Group
	for s := 0; s < 8; s++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				f, err := Submit(p, func(ctx context.Context) (int, error) { return i, nil })
				switch {
				case err == nil:
					mu.Lock()
					accepted = append(accepted, f)
					mu.Unlock()
				case errors.Is(err, gferrors.ErrRejected):
					rejected.Add(1)
				default:
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		time.Sleep(time.Millisecond)
		return p.Shutdown()
	})
	testutil.AssertNoError(t, g.Wait())
	testutil.AssertNoError(t, p.AwaitTerminationTimeout(testutil.TestTimeout))

	mu.Lock()
	defer mu.Unlock()
	for _, f := range accepted {
		testutil.AssertEqual(t, f.IsDone(), true)
	}
	testutil.AssertEqual(t, int(p.TotalSubmitted()), len(accepted))
	testutil.AssertEqual(t, int(p.TotalCompleted()), len(accepted))
	testutil.AssertEqual(t, len(accepted)+int(rejected.Load()), 8*200)
}
