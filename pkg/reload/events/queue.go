package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned once a closed queue has been drained.
var ErrClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO of events with a single consumer.
//
// Push never blocks and never drops. Pop suspends until an item arrives,
// the context ends, or the queue is closed and empty.
type Queue struct {
	mu     sync.Mutex
	items  []FileEvent
	notify chan struct{}
	closed bool
	peak   int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends ev. It fails only after Close.
func (q *Queue) Push(ev FileEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, ev)
	if len(q.items) > q.peak {
		q.peak = len(q.items)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryPop removes the oldest event without waiting.
func (q *Queue) TryPop() (FileEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (FileEvent, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return ev, true
}

// Pop removes the oldest event, waiting for one if the queue is empty.
// Items pushed before Close are still returned; after that Pop returns ErrClosed.
func (q *Queue) Pop(ctx context.Context) (FileEvent, error) {
	for {
		q.mu.Lock()
		if ev, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return ev, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Peak returns the largest length the queue has reached.
func (q *Queue) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}

// Close stops further pushes and wakes a waiting Pop. It is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
