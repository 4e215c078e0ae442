package semaphore

import (
	"context"
	"sync"

	"github.com/vnykmshr/prioflow/pkg/common/validation"
)

type waiter struct {
	n     int
	ready chan struct{}
}

// Semaphore is a counting semaphore. The zero value is not usable; create
// one with New.
type Semaphore struct {
	mu        sync.Mutex
	available int
	waiters   []waiter
}

// New creates a semaphore holding initial permits. initial may be zero.
func New(initial int) (*Semaphore, error) {
	if err := validation.ValidateNonNegative("semaphore", "initial", initial); err != nil {
		return nil, err
	}
	return &Semaphore{available: initial}, nil
}

// TryAcquire takes one permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	return s.TryAcquireN(1)
}

// TryAcquireN takes n permits without blocking. It fails if others are
// already waiting, even when enough permits are free.
func (s *Semaphore) TryAcquireN(n int) bool {
	if n <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) == 0 && s.available >= n {
		s.available -= n
		return true
	}
	return false
}

// Acquire blocks until one permit is taken or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.AcquireN(ctx, 1)
}

// AcquireN blocks until n permits are taken or ctx is done. On error no
// permits are held.
func (s *Semaphore) AcquireN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.waiters) == 0 && s.available >= n {
		s.available -= n
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, waiter{n: n, ready: ready})
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		if !s.removeWaiterLocked(ready) {
			// Granted concurrently with cancellation; give the permits back.
			s.available += n
			s.notifyLocked()
		} else if len(s.waiters) > 0 {
			// We may have been blocking smaller requests behind us.
			s.notifyLocked()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Release adds one permit.
func (s *Semaphore) Release() {
	s.ReleaseN(1)
}

// ReleaseN adds n permits and wakes as many waiters as they satisfy.
func (s *Semaphore) ReleaseN(n int) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.available += n
	s.notifyLocked()
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Waiting returns the number of goroutines blocked in Acquire.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// notifyLocked grants permits to waiters in arrival order, stopping at the
// first one that cannot be satisfied. Must be called with s.mu held.
func (s *Semaphore) notifyLocked() {
	granted := 0
	for _, w := range s.waiters {
		if s.available < w.n {
			break
		}
		s.available -= w.n
		close(w.ready)
		granted++
	}
	if granted > 0 {
		s.waiters = append(s.waiters[:0], s.waiters[granted:]...)
	}
}

// removeWaiterLocked reports whether ready was still waiting.
// Must be called with s.mu held.
func (s *Semaphore) removeWaiterLocked(ready chan struct{}) bool {
	for i, w := range s.waiters {
		if w.ready == ready {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}
