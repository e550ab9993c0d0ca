package session

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of pending items. Many producers may Push
// concurrently with the single consumer's Pop; Drain and Snapshot are safe
// at any time.
type Queue struct {
	mu    sync.Mutex
	items []Item
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push appends an item and wakes the consumer if it is waiting.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest item, blocking until one is available
// or ctx is cancelled. Cancellation returns ctx.Err().
func (q *Queue) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-q.wake:
			// re-check; the wake token may be stale after a Drain
		}
	}
}

// Drain atomically removes all pending items and returns how many there
// were. No synthesis or playback happens for drained items.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of up to limit pending items plus the total
// pending count, without removing anything.
func (q *Queue) Snapshot(limit int) ([]Item, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := len(q.items)
	n := total
	if limit > 0 && n > limit {
		n = limit
	}
	preview := make([]Item, n)
	copy(preview, q.items[:n])
	return preview, total
}
