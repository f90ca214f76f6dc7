// Package cmdqueue provides the bounded queue carrying inbound commands from
// the MQTT handler goroutine to the bridge loop. Pushes never block the
// broker callback.
package cmdqueue

import "sync"

// Queue is a bounded single-consumer FIFO of T.
type Queue[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// New creates a queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPush enqueues e without blocking. It reports false when the queue is
// full or closed, so the caller can surface the drop.
func (q *Queue[T]) TryPush(e T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// Ch exposes the receive side for use in a select.
func (q *Queue[T]) Ch() <-chan T { return q.ch }

// Close closes the queue. Pending items remain readable; further pushes
// report false. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
