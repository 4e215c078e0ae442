// Package queue provides a generic blocking priority queue.
//
// Consumers block in Dequeue until a value is available or their context is
// done. Values leave in order of the supplied comparison, with ties broken by
// insertion order, and a value still waiting can be withdrawn with Remove.
package queue
