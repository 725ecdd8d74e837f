// Package observability defines backend-neutral metrics and tracing used by the relay.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// MetricsProvider defines the interface for recording metrics.
// Implementations live in the prometheus and otel subpackages.
type MetricsProvider interface {
	// Counter increments a counter metric
	Counter(ctx context.Context, name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric value
	Gauge(ctx context.Context, name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram/distribution
	Histogram(ctx context.Context, name string, value float64, tags map[string]string)

	// Timing records a duration
	Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string)

	// Flush ensures all metrics are sent (for buffered providers)
	Flush(ctx context.Context) error

	// Close shuts down the metrics provider
	Close(ctx context.Context) error
}

// HandlerProvider is implemented by pull-based providers that serve their own scrape endpoint.
type HandlerProvider interface {
	Handler() http.Handler
}

// Metrics provides a convenient wrapper for recording relay metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider  MetricsProvider
	namespace string
}

// NewMetrics creates a new Metrics instance with the given provider.
func NewMetrics(provider MetricsProvider, namespace string) *Metrics {
	return &Metrics{
		provider:  provider,
		namespace: namespace,
	}
}

// Provider returns the underlying provider.
func (m *Metrics) Provider() MetricsProvider {
	if m == nil {
		return nil
	}
	return m.provider
}

func (m *Metrics) prefixName(name string) string {
	if m.namespace == "" {
		return name
	}
	return m.namespace + "." + name
}

// HTTP metrics

func (m *Metrics) HTTPRequestTotal(ctx context.Context, method, path, status string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("http.requests.total"), 1, map[string]string{
		"method": method,
		"path":   path,
		"status": status,
	})
}

func (m *Metrics) HTTPRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provider.Timing(ctx, m.prefixName("http.request.duration"), duration, map[string]string{
		"method": method,
		"path":   path,
	})
}

// Ingestion metrics

func (m *Metrics) SubmissionAccepted(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("submissions.accepted"), 1, nil)
	m.provider.Histogram(ctx, m.prefixName("submissions.bytes"), float64(size), nil)
}

func (m *Metrics) SubmissionRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("submissions.rejected"), 1, map[string]string{
		"reason": reason,
	})
}

// Queue metrics

func (m *Metrics) QueueDepth(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("queue.depth"), float64(size), nil)
}

func (m *Metrics) QueueRequeued(ctx context.Context) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("queue.requeued"), 1, nil)
}

// Delivery metrics

func (m *Metrics) DeliverySucceeded(ctx context.Context, destinationHost string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("deliveries.succeeded"), 1, map[string]string{
		"destination_host": destinationHost,
	})
	m.provider.Timing(ctx, m.prefixName("delivery.duration"), duration, map[string]string{
		"destination_host": destinationHost,
	})
}

func (m *Metrics) DeliveryFailed(ctx context.Context, destinationHost, reason string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("deliveries.failed"), 1, map[string]string{
		"destination_host": destinationHost,
		"reason":           reason,
	})
}

func (m *Metrics) DeliveryAttempts(ctx context.Context, attempts int) {
	if m == nil {
		return
	}
	m.provider.Histogram(ctx, m.prefixName("delivery.attempts"), float64(attempts), nil)
}

func (m *Metrics) PayloadsLost(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.provider.Counter(ctx, m.prefixName("payloads.lost"), int64(count), map[string]string{
		"cause": "shutdown",
	})
}

// Flush flushes all pending metrics.
func (m *Metrics) Flush(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Flush(ctx)
}

// Close shuts down the metrics provider.
func (m *Metrics) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Close(ctx)
}

func statusString(status int) string {
	return strconv.Itoa(status)
}
