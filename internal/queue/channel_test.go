package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

func payload(s string) domain.Payload {
	return domain.NewPayload([]byte(s))
}

func dequeueString(t *testing.T, c *Channel) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := c.Dequeue(ctx)
	require.NoError(t, err)
	return string(p.Bytes())
}

func TestChannel_FIFO(t *testing.T) {
	c := NewChannel(Unbounded)

	for _, s := range []string{"a", "b", "c"} {
		require.True(t, c.Enqueue(payload(s)))
	}
	assert.Equal(t, 3, c.Len())

	assert.Equal(t, "a", dequeueString(t, c))
	assert.Equal(t, "b", dequeueString(t, c))
	assert.Equal(t, "c", dequeueString(t, c))
	assert.Equal(t, 0, c.Len())
}

func TestChannel_CapacityRejects(t *testing.T) {
	c := NewChannel(2)

	assert.True(t, c.Enqueue(payload("a")))
	assert.True(t, c.Enqueue(payload("b")))
	assert.False(t, c.Enqueue(payload("c")))
	assert.Equal(t, 2, c.Len())

	// Rejection leaves the contents untouched.
	assert.Equal(t, "a", dequeueString(t, c))
	assert.True(t, c.Enqueue(payload("d")))
	assert.Equal(t, "b", dequeueString(t, c))
	assert.Equal(t, "d", dequeueString(t, c))

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, 2, stats.Capacity)
}

func TestChannel_NegativeCapacityIsUnbounded(t *testing.T) {
	c := NewChannel(-5)
	assert.Equal(t, Unbounded, c.Capacity())
	for i := 0; i < 100; i++ {
		require.True(t, c.Enqueue(payload("x")))
	}
}

func TestChannel_RequeueBypassesCapacity(t *testing.T) {
	c := NewChannel(1)

	require.True(t, c.Enqueue(payload("a")))
	c.Requeue(payload("retry"))

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Enqueue(payload("b")))
	assert.Equal(t, "a", dequeueString(t, c))
	assert.Equal(t, "retry", dequeueString(t, c))
	assert.Equal(t, int64(1), c.Stats().Requeued)
}

func TestChannel_RequeueGoesToTail(t *testing.T) {
	c := NewChannel(Unbounded)
	c.Enqueue(payload("b"))
	c.Enqueue(payload("c"))
	c.Requeue(payload("a"))

	assert.Equal(t, "b", dequeueString(t, c))
	assert.Equal(t, "c", dequeueString(t, c))
	assert.Equal(t, "a", dequeueString(t, c))
}

func TestChannel_DequeueWaitsForEnqueue(t *testing.T) {
	c := NewChannel(Unbounded)

	got := make(chan string, 1)
	go func() {
		p, err := c.Dequeue(context.Background())
		if err == nil {
			got <- string(p.Bytes())
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before enqueue")
	case <-time.After(20 * time.Millisecond):
	}

	c.Enqueue(payload("late"))

	select {
	case s := <-got:
		assert.Equal(t, "late", s)
	case <-time.After(time.Second):
		t.Fatal("dequeue was not woken")
	}
}

func TestChannel_DequeueCancelled(t *testing.T) {
	c := NewChannel(Unbounded)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Dequeue(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestChannel_DequeueCancelledLeavesItems(t *testing.T) {
	c := NewChannel(Unbounded)
	c.Enqueue(payload("keep"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.Len())
}

func TestChannel_ConcurrentProducersConsumers(t *testing.T) {
	const producers, perProducer, consumers = 4, 250, 3
	c := NewChannel(Unbounded)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
		done = make(chan struct{})
	)

	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				p, err := c.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[p.ID().String()]++
				if len(seen) == producers*perProducer {
					close(done)
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < producers; i++ {
		go func() {
			for j := 0; j < perProducer; j++ {
				c.Enqueue(payload("x"))
			}
		}()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for consumers")
	}
	cancel()
	wg.Wait()

	for id, n := range seen {
		assert.Equal(t, 1, n, "payload %s delivered %d times", id, n)
	}
}

type depthRecorder struct {
	observability.NoopMetricsProvider
	mu     sync.Mutex
	depths []float64
	counts map[string]int64
}

func (d *depthRecorder) Gauge(_ context.Context, _ string, v float64, _ map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depths = append(d.depths, v)
}

func (d *depthRecorder) Counter(_ context.Context, name string, v int64, _ map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = make(map[string]int64)
	}
	d.counts[name] += v
}

func TestChannel_Metrics(t *testing.T) {
	rec := &depthRecorder{}
	c := NewChannel(Unbounded, WithMetrics(observability.NewMetrics(rec, "")))

	c.Enqueue(payload("a"))
	c.Enqueue(payload("b"))
	dequeueString(t, c)
	c.Requeue(payload("a"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []float64{1, 2, 1, 2}, rec.depths)
	assert.Equal(t, int64(1), rec.counts["queue.requeued"])
}
