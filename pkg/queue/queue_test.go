package queue

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/prioflow/internal/testutil"
)

type item struct {
	id       int
	priority int
}

func byPriority(a, b *item) bool { return a.priority > b.priority }

func TestDequeueOrder(t *testing.T) {
	tests := []struct {
		name       string
		priorities []int
	}{
		{"single", []int{5}},
		{"ascending", []int{1, 2, 3, 4, 5}},
		{"descending", []int{10, 8, 6, 4, 2}},
		{"mixed with ties", []int{5, 1, 10, 5, 1, 10, 5}},
		{"all equal", []int{3, 3, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(byPriority)
			for i, p := range tt.priorities {
				testutil.AssertNoError(t, q.Enqueue(&item{id: i, priority: p}))
			}
			testutil.AssertEqual(t, q.Len(), len(tt.priorities))

			seen := make(map[int]bool)
			last := int(^uint(0) >> 1)
			for range tt.priorities {
				it, err := q.Dequeue(context.Background())
				testutil.AssertNoError(t, err)
				if it.priority > last {
					t.Fatalf("priority %d dequeued after %d", it.priority, last)
				}
				if seen[it.id] {
					t.Fatalf("item %d dequeued twice", it.id)
				}
				seen[it.id] = true
				last = it.priority
			}
			testutil.AssertEqual(t, q.IsEmpty(), true)
		})
	}
}

func TestEqualPriorityIsFIFO(t *testing.T) {
	q := New(byPriority)
	for i := 0; i < 20; i++ {
		testutil.AssertNoError(t, q.Enqueue(&item{id: i, priority: 5}))
	}
	for i := 0; i < 20; i++ {
		it, ok := q.TryDequeue()
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, it.id, i)
	}
}

func TestRandomizedOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	q := New(byPriority)
	want := make([]int, 500)
	for i := range want {
		want[i] = r.Intn(12)
		testutil.AssertNoError(t, q.Enqueue(&item{id: i, priority: want[i]}))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(want)))

	for i := range want {
		it, ok := q.TryDequeue()
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, it.priority, want[i])
	}
	_, ok := q.TryDequeue()
	testutil.AssertEqual(t, ok, false)
}

func TestEnqueueDuplicate(t *testing.T) {
	q := New(byPriority)
	it := &item{id: 1, priority: 1}

	testutil.AssertNoError(t, q.Enqueue(it))
	testutil.AssertErrorIs(t, q.Enqueue(it), ErrDuplicate)
	testutil.AssertEqual(t, q.Len(), 1)

	// Once dequeued the same value may be queued again.
	_, _ = q.TryDequeue()
	testutil.AssertNoError(t, q.Enqueue(it))
}

func TestRemove(t *testing.T) {
	q := New(byPriority)
	items := []*item{{1, 1}, {2, 9}, {3, 5}, {4, 7}}
	for _, it := range items {
		testutil.AssertNoError(t, q.Enqueue(it))
	}

	testutil.AssertEqual(t, q.Remove(items[3]), true)
	testutil.AssertEqual(t, q.Remove(items[3]), false)
	testutil.AssertEqual(t, q.Len(), 3)

	var order []int
	for !q.IsEmpty() {
		it, _ := q.TryDequeue()
		order = append(order, it.id)
	}
	testutil.AssertEqual(t, len(order), 3)
	testutil.AssertEqual(t, order[0], 2)
	testutil.AssertEqual(t, order[1], 3)
	testutil.AssertEqual(t, order[2], 1)

	// Removing a value that was dequeued fails and changes nothing.
	testutil.AssertEqual(t, q.Remove(items[1]), false)
	testutil.AssertEqual(t, q.Len(), 0)
}

func TestRemoveFunc(t *testing.T) {
	q := New(byPriority)
	for i := 0; i < 10; i++ {
		testutil.AssertNoError(t, q.Enqueue(&item{id: i, priority: i}))
	}

	removed := q.RemoveFunc(func(it *item) bool { return it.id%2 == 0 })
	testutil.AssertEqual(t, len(removed), 5)
	for i, it := range removed {
		testutil.AssertEqual(t, it.id, 8-2*i)
	}
	testutil.AssertEqual(t, q.Len(), 5)

	for want := 9; want > 0; want -= 2 {
		it, ok := q.TryDequeue()
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, it.id, want)
	}

	testutil.AssertEqual(t, len(q.RemoveFunc(func(*item) bool { return true })), 0)
}

func TestPeek(t *testing.T) {
	q := New(byPriority)
	_, ok := q.Peek()
	testutil.AssertEqual(t, ok, false)

	testutil.AssertNoError(t, q.Enqueue(&item{id: 1, priority: 1}))
	testutil.AssertNoError(t, q.Enqueue(&item{id: 2, priority: 3}))

	it, ok := q.Peek()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, it.id, 2)
	testutil.AssertEqual(t, q.Len(), 2)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(byPriority)
	got := make(chan *item, 1)

	go func() {
		it, err := q.Dequeue(context.Background())
		if err == nil {
			got <- it
		}
	}()

	testutil.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	default:
	}

	want := &item{id: 7, priority: 1}
	testutil.AssertNoError(t, q.Enqueue(want))

	select {
	case it := <-got:
		testutil.AssertEqual(t, it, want)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
	testutil.AssertEqual(t, q.Waiting(), 0)
}

func TestDequeueContextCanceled(t *testing.T) {
	q := New(byPriority)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	testutil.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		testutil.AssertErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Dequeue ignored cancellation")
	}
	testutil.AssertEqual(t, q.Waiting(), 0)

	// The canceled consumer must not have consumed anything.
	testutil.AssertNoError(t, q.Enqueue(&item{id: 1}))
	testutil.AssertEqual(t, q.Len(), 1)
}

func TestDequeueAlreadyCanceled(t *testing.T) {
	q := New(byPriority)
	testutil.AssertNoError(t, q.Enqueue(&item{id: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	testutil.AssertErrorIs(t, err, context.Canceled)
	testutil.AssertEqual(t, q.Len(), 1)
}

func TestDequeueSkipsRemoved(t *testing.T) {
	q := New(byPriority)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	it := &item{id: 1}
	testutil.AssertNoError(t, q.Enqueue(it))
	testutil.AssertEqual(t, q.Remove(it), true)

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded for a removed value, got %v", err)
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const (
		producers   = 8
		consumers   = 6
		perProducer = 250
		total       = producers * perProducer
	)

	q := New(byPriority)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[int]int, total)
	)

	var consumersGroup errgroup.Group
	taken := make(chan struct{}, total)
	for c := 0; c < consumers; c++ {
		consumersGroup.Go(func() error {
			for {
				it, err := q.Dequeue(ctx)
				if err != nil {
					return nil
				}
				mu.Lock()
				seen[it.id]++
				mu.Unlock()
				taken <- struct{}{}
			}
		})
	}

	var producersGroup errgroup.Group
	for p := 0; p < producers; p++ {
		base := p * perProducer
		producersGroup.Go(func() error {
			for i := 0; i < perProducer; i++ {
				it := &item{id: base + i, priority: (base + i) % 7}
				if err := q.Enqueue(it); err != nil {
					return err
				}
				if i%10 == 0 {
					// Remove and re-add to exercise identity removal under load.
					if q.Remove(it) {
						if err := q.Enqueue(it); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
	}
	testutil.AssertNoError(t, producersGroup.Wait())

	for i := 0; i < total; i++ {
		select {
		case <-taken:
		case <-ctx.Done():
			t.Fatalf("only %d of %d values consumed", i, total)
		}
	}
	cancel()
	testutil.AssertNoError(t, consumersGroup.Wait())

	testutil.AssertEqual(t, len(seen), total)
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("value %d consumed %d times", id, n)
		}
	}
	testutil.AssertEqual(t, q.Len(), 0)
	testutil.AssertEqual(t, q.Waiting(), 0)
}
