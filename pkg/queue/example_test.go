package queue_test

import (
	"context"
	"fmt"

	"github.com/vnykmshr/prioflow/pkg/queue"
)

type job struct {
	name     string
	priority int
}

func Example() {
	q := queue.New(func(a, b *job) bool { return a.priority > b.priority })

	_ = q.Enqueue(&job{"cleanup", 1})
	_ = q.Enqueue(&job{"report", 5})
	_ = q.Enqueue(&job{"alert", 10})
	_ = q.Enqueue(&job{"audit", 5})

	for !q.IsEmpty() {
		j, _ := q.Dequeue(context.Background())
		fmt.Println(j.name)
	}
	// Output:
	// alert
	// report
	// audit
	// cleanup
}

func ExampleQueue_Remove() {
	q := queue.New(func(a, b *job) bool { return a.priority > b.priority })

	stale := &job{"stale", 3}
	_ = q.Enqueue(stale)
	_ = q.Enqueue(&job{"fresh", 3})

	fmt.Println(q.Remove(stale))
	fmt.Println(q.Remove(stale))
	fmt.Println(q.Len())
	// Output:
	// true
	// false
	// 1
}
