// Package queue provides the in-memory delivery channel between ingestion and forwarding.
package queue

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

var log = logging.Component("queue")

// Unbounded is the capacity value that disables the admission limit.
const Unbounded = 0

// Stats is a point-in-time view of a Channel.
type Stats struct {
	Pending  int   `json:"pending"`
	Capacity int   `json:"capacity"`
	Enqueued int64 `json:"enqueued"`
	Rejected int64 `json:"rejected"`
	Requeued int64 `json:"requeued"`
}

// Channel is a FIFO of payloads shared by any number of producers and consumers.
// Enqueue never blocks; Dequeue blocks until a payload is available or the
// context is done. Contents are volatile and lost on exit.
type Channel struct {
	capacity int
	metrics  *observability.Metrics

	mu       sync.Mutex
	items    *queue.Queue
	enqueued int64
	rejected int64
	requeued int64

	// signal holds at most one pending wakeup for blocked consumers.
	signal chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithMetrics records queue depth and requeues.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Channel) {
		c.metrics = metrics
	}
}

// NewChannel creates a channel. A capacity of Unbounded (or anything below it)
// admits every payload.
func NewChannel(capacity int, opts ...Option) *Channel {
	if capacity < Unbounded {
		capacity = Unbounded
	}
	c := &Channel{
		capacity: capacity,
		items:    queue.New(),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends p at the tail. It returns false, leaving the channel
// unchanged, when the channel is bounded and already holds capacity payloads.
func (c *Channel) Enqueue(p domain.Payload) bool {
	c.mu.Lock()
	if c.capacity != Unbounded && c.items.Length() >= c.capacity {
		c.rejected++
		c.mu.Unlock()
		log.Debug("channel full, payload rejected", "payload_id", p.ID(), "capacity", c.capacity)
		return false
	}
	c.items.Add(p)
	c.enqueued++
	depth := c.items.Length()
	c.mu.Unlock()

	c.wake()
	c.metrics.QueueDepth(context.Background(), depth)
	return true
}

// Requeue appends p at the tail regardless of capacity. Payloads already
// admitted are never dropped for lack of room.
func (c *Channel) Requeue(p domain.Payload) {
	c.mu.Lock()
	c.items.Add(p)
	c.requeued++
	depth := c.items.Length()
	c.mu.Unlock()

	c.wake()
	ctx := context.Background()
	c.metrics.QueueRequeued(ctx)
	c.metrics.QueueDepth(ctx, depth)
}

// Dequeue removes and returns the head payload, waiting while the channel is
// empty. It returns ctx.Err() once ctx is done, without removing anything.
func (c *Channel) Dequeue(ctx context.Context) (domain.Payload, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Payload{}, err
		}

		if p, ok := c.tryDequeue(); ok {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return domain.Payload{}, ctx.Err()
		case <-c.signal:
		}
	}
}

func (c *Channel) tryDequeue() (domain.Payload, bool) {
	c.mu.Lock()
	if c.items.Length() == 0 {
		c.mu.Unlock()
		return domain.Payload{}, false
	}
	p := c.items.Remove().(domain.Payload)
	depth := c.items.Length()
	c.mu.Unlock()

	// Pass the wakeup on so other waiting consumers see the remaining items.
	if depth > 0 {
		c.wake()
	}
	c.metrics.QueueDepth(context.Background(), depth)
	return p, true
}

func (c *Channel) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of payloads waiting.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Length()
}

// Capacity returns the admission limit, or Unbounded.
func (c *Channel) Capacity() int {
	return c.capacity
}

// Stats returns counters since creation.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Pending:  c.items.Length(),
		Capacity: c.capacity,
		Enqueued: c.enqueued,
		Rejected: c.rejected,
		Requeued: c.requeued,
	}
}
