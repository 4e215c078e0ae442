package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

// ErrDuplicate is returned by Enqueue when the value is already queued.
var ErrDuplicate = errors.New("queue: value already present")

// Queue is a blocking priority queue safe for concurrent producers and
// consumers. Values are identified by equality, which lets a specific value
// be removed while it is still waiting.
//
// Every mutation of the heap happens under one mutex, so the number of
// values a consumer may take is always exactly Len().
type Queue[T comparable] struct {
	mu      sync.Mutex
	heap    entryHeap[T]
	index   map[T]*entry[T]
	seq     uint64
	waiters []chan struct{}
}

// New creates an empty queue. before(a, b) must report whether a is more
// urgent than b; values for which neither is more urgent leave in insertion
// order.
func New[T comparable](before func(a, b T) bool) *Queue[T] {
	return &Queue[T]{
		heap:  entryHeap[T]{before: before},
		index: make(map[T]*entry[T]),
	}
}

// Enqueue inserts v and wakes one blocked consumer, if any.
func (q *Queue[T]) Enqueue(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[v]; ok {
		return ErrDuplicate
	}

	q.seq++
	e := &entry[T]{value: v, seq: q.seq}
	heap.Push(&q.heap, e)
	q.index[v] = e
	q.signalLocked()
	return nil
}

// Dequeue removes and returns the most urgent value, blocking until one is
// available or ctx is done.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		q.mu.Lock()
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return v, nil
		}
		ready := make(chan struct{})
		q.waiters = append(q.waiters, ready)
		q.mu.Unlock()

		select {
		case <-ready:
			// Another consumer or a Remove may win the value; loop and re-check.
		case <-ctx.Done():
			q.mu.Lock()
			if !q.removeWaiterLocked(ready) {
				// Already signaled: hand the wake-up to the next consumer.
				q.signalLocked()
			}
			q.mu.Unlock()
			return zero, ctx.Err()
		}
	}
}

// TryDequeue removes and returns the most urgent value without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Remove deletes v if it is still queued and reports whether it did.
func (q *Queue[T]) Remove(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[v]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.index)
	delete(q.index, v)
	return true
}

// RemoveFunc atomically deletes every queued value for which match returns
// true and returns them in dequeue order.
func (q *Queue[T]) RemoveFunc(match func(T) bool) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed, kept []*entry[T]
	for _, e := range q.heap.entries {
		if match(e.value) {
			removed = append(removed, e)
			delete(q.index, e.value)
		} else {
			kept = append(kept, e)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	q.heap.entries = kept
	for i, e := range q.heap.entries {
		e.index = i
	}
	heap.Init(&q.heap)

	ordered := entryHeap[T]{entries: removed, before: q.heap.before}
	heap.Init(&ordered)
	out := make([]T, 0, len(removed))
	for ordered.Len() > 0 {
		out = append(out, heap.Pop(&ordered).(*entry[T]).value)
	}
	return out
}

// Peek returns the most urgent value without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.heap.entries[0].value, true
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// IsEmpty reports whether the queue holds no values.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Waiting returns the number of consumers blocked in Dequeue.
func (q *Queue[T]) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// popLocked must be called with q.mu held.
func (q *Queue[T]) popLocked() (T, bool) {
	if q.heap.Len() == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.heap).(*entry[T])
	delete(q.index, e.value)
	return e.value, true
}

// signalLocked wakes the oldest waiter when there is something to take.
// Must be called with q.mu held.
func (q *Queue[T]) signalLocked() {
	if len(q.waiters) == 0 || q.heap.Len() == 0 {
		return
	}
	ready := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	close(ready)
}

// removeWaiterLocked reports whether ready was still registered.
// Must be called with q.mu held.
func (q *Queue[T]) removeWaiterLocked(ready chan struct{}) bool {
	for i, w := range q.waiters {
		if w == ready {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}
