package mempool

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DefaultQueueSize is the number of candidates held before the oldest ones are dropped.
const DefaultQueueSize = 128

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("candidate queue is closed")

// Queue is a bounded FIFO shared by one producer and one consumer. A full queue drops its oldest entry to make room,
// so Push never blocks and the newest entry is always kept.
type Queue[T any] struct {
	lock     sync.Mutex
	items    []T
	head     int
	count    int
	dropped  uint64
	closed   bool
	notifyCh chan struct{}
}

// NewQueue creates a Queue holding at most capacity entries. A zero capacity selects DefaultQueueSize.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue[T]{
		items:    make([]T, capacity),
		notifyCh: make(chan struct{}, 1),
	}
}

// Push appends item. When the queue is full the oldest entry is evicted and returned with true. Pushing to a closed
// queue discards item.
func (q *Queue[T]) Push(item T) (T, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	var evicted T
	if q.closed {
		return evicted, false
	}

	capacity := len(q.items)
	dropped := false
	if q.count == capacity {
		evicted = q.items[q.head]
		q.head = (q.head + 1) % capacity
		q.count--
		q.dropped++
		dropped = true
	}
	q.items[(q.head+q.count)%capacity] = item
	q.count++

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
	return evicted, dropped
}

// Pop removes and returns the oldest entry, waiting until one is available, the queue is closed or ctx is done.
// Entries pushed before Close are still delivered.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.lock.Lock()
		if q.count > 0 {
			var zero T
			item := q.items[q.head]
			q.items[q.head] = zero
			q.head = (q.head + 1) % len(q.items)
			q.count--
			q.lock.Unlock()
			return item, nil
		}
		closed := q.closed
		q.lock.Unlock()

		var zero T
		if closed {
			return zero, ErrQueueClosed
		}
		select {
		case <-q.notifyCh:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

// Dropped returns how many entries were evicted so far.
func (q *Queue[T]) Dropped() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.dropped
}

// Close stops the queue from accepting entries and wakes a waiting consumer.
func (q *Queue[T]) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}
