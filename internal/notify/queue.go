// Package notify delivers values to subscriber callbacks in order, off the
// caller's goroutine.
package notify

import "sync"

// Queue hands pushed values to a single callback, one at a time, in push
// order. Push never blocks, so a callback may itself trigger further pushes
// to the same queue.
//
// After Close returns the callback is never invoked again. Close waits for an
// in-flight delivery to finish, so it must not be called from inside the
// queue's own callback.
type Queue[T any] struct {
	fn func(T)

	mu     sync.Mutex
	items  []T
	closed bool

	// delivering is held for the duration of each callback.
	delivering sync.Mutex
	wake       chan struct{}
}

// NewQueue starts a dispatcher goroutine that feeds values to fn.
func NewQueue[T any](fn func(T)) *Queue[T] {
	q := &Queue[T]{
		fn:   fn,
		wake: make(chan struct{}, 1),
	}
	go q.run()
	return q
}

// Push enqueues v. It reports false if the queue is already closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return true
}

// Close stops delivery and discards anything still queued. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.signal()

	// Wait out a delivery that started before closed was set.
	q.delivering.Lock()
	q.delivering.Unlock()
}

// Len returns the number of values waiting for delivery.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) run() {
	for range q.wake {
		for {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				return
			}
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			var zero T
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			// Take the delivery lock before releasing mu so Close cannot
			// slip in between the closed check and the callback.
			q.delivering.Lock()
			q.mu.Unlock()

			q.fn(v)
			q.delivering.Unlock()
		}
	}
}
