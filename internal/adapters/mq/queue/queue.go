// Package queue buffers market update triggers between the inbound surfaces
// (HTTP, Redis list, CLI) and the worker pool.
//
// A market that already has a pending trigger is not queued twice: the second
// trigger is coalesced into the first.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/champstock/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Trigger asks for one update cycle of a market.
type Trigger struct {
	MarketID   int64
	Source     string // http, redis, cli
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger. coalesced reports that the market was already pending.
	Enqueue(ctx context.Context, t Trigger) (coalesced bool, err error)

	// Dequeue returns a channel that will receive triggers as they become available.
	// The channel is closed when the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan Trigger

	// Len returns the number of pending triggers.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel and a pending set.
type InMemoryQueue struct {
	triggers chan Trigger
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		now:      time.Now,
		pending:  make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.triggers = make(chan Trigger, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a trigger to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Trigger) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false, err
	}
	if _, ok := q.pending[t.MarketID]; ok {
		metrics.RecordQueueCoalesced()
		return true, nil
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.now()
	}

	select {
	case q.triggers <- t:
		q.pending[t.MarketID] = struct{}{}
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.triggers))
		return false, nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false, ErrFull
	}
}

// Dequeue returns a channel that will receive triggers as they become available.
// A market leaves the pending set when its trigger is handed to a consumer, so a
// trigger arriving while that cycle runs is queued again.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Trigger {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-q.triggers:
				if !ok {
					return
				}
				q.mu.Lock()
				delete(q.pending, t.MarketID)
				q.mu.Unlock()
				metrics.UpdateQueueSize(len(q.triggers))
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of pending triggers.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.triggers)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting triggers. Pending triggers are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
