package workerpool

import "strconv"

// Priority orders tasks in the queue. Larger values are more urgent.
type Priority int

// Named priority levels accepted from callers.
const (
	PriorityLow     Priority = 1
	PriorityDefault Priority = 5
	PriorityHigh    Priority = 10
)

// Reserved levels for control tasks. Callers can never submit at these.
const (
	// priorityDeferred sorts behind all user work; used by Shutdown so the
	// backlog drains before workers exit.
	priorityDeferred = PriorityLow - 1

	// priorityImmediate sorts ahead of all user work; used for resize,
	// pause and ShutdownNow.
	priorityImmediate = PriorityHigh + 1
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityDefault:
		return "default"
	case PriorityHigh:
		return "high"
	case priorityDeferred:
		return "deferred"
	case priorityImmediate:
		return "immediate"
	}
	return strconv.Itoa(int(p))
}

// Valid reports whether p may be used for user submissions.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// more reports whether a should be dequeued before b.
func more(a, b *task) bool {
	return a.priority > b.priority
}
