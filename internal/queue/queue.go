// Package queue holds the per-batch FIFO queues and the loops that drain them.
package queue

import (
	"fmt"
	"sync"

	"bulkdl/internal/errs"
)

// Queue is a FIFO safe for concurrent use. Every pushed item is popped at most once.
// At most one drain loop may own a queue at a time.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	draining bool
	leftover bool
}

// New returns a queue holding items in order.
func New[T any](items ...T) *Queue[T] {
	q := &Queue[T]{}
	q.items = append(q.items, items...)

	return q
}

// Push appends items to the tail.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, items...)
}

// Pop removes and returns the head item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil

	return items
}

// claim marks the queue as owned by a drain loop. It fails if another loop
// owns it or a previous loop stopped before emptying it.
func (q *Queue[T]) claim() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return fmt.Errorf("%w: another loop is draining it", errs.ErrQueueNotDrained)
	}

	if q.leftover {
		return fmt.Errorf("%w: %d items left by an earlier run", errs.ErrQueueNotDrained, len(q.items))
	}

	q.draining = true

	return nil
}

func (q *Queue[T]) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.draining = false
	q.leftover = len(q.items) > 0
}
