package queue

// entry is one queued value together with its heap bookkeeping.
type entry[T comparable] struct {
	value T
	seq   uint64
	index int
}

// entryHeap implements heap.Interface. before reports whether a must be
// dequeued ahead of b; ties fall back to insertion order.
type entryHeap[T comparable] struct {
	entries []*entry[T]
	before  func(a, b T) bool
}

func (h *entryHeap[T]) Len() int { return len(h.entries) }

func (h *entryHeap[T]) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.before(a.value, b.value) {
		return true
	}
	if h.before(b.value, a.value) {
		return false
	}
	return a.seq < b.seq
}

func (h *entryHeap[T]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *entryHeap[T]) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	h.entries = old[:n-1]
	return e
}
