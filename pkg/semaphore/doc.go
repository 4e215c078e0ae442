/*
Package semaphore provides a counting semaphore with context-aware blocking
acquisition.

Unlike a capacity-bounded limiter, the semaphore has no upper bound: Release
may add permits that were never acquired, which makes it usable as a gate
that starts closed.

	gate, _ := semaphore.New(0)

	go func() {
		if err := gate.Acquire(ctx); err != nil {
			return // canceled while parked
		}
		// proceed
	}()

	gate.Release() // open the gate for one waiter

Waiters are served in arrival order. A waiter asking for more permits than are
available blocks the waiters behind it, so a large request is not starved by
a stream of small ones.
*/
package semaphore
