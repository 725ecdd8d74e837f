package otel

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

func testConfig() observability.ProviderConfig {
	return observability.ProviderConfig{
		ServiceName:    "relayproxy-test",
		ServiceVersion: "test",
		Environment:    "test",
		SampleRate:     1,
	}
}

func TestMetricsProvider_WithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	p, err := NewMetricsProvider(ctx, testConfig())
	require.NoError(t, err)

	p.Counter(ctx, "relay.submissions.accepted", 1, nil)
	p.Gauge(ctx, "relay.queue.depth", 2, nil)
	p.Histogram(ctx, "relay.submissions.bytes", 64, map[string]string{"k": "v"})
	p.Timing(ctx, "relay.delivery.duration", time.Millisecond, nil)

	assert.NoError(t, p.Flush(ctx))
	assert.NoError(t, p.Close(ctx))
}

func TestTracingProvider_PropagatesContext(t *testing.T) {
	ctx := context.Background()
	p, err := NewTracingProvider(ctx, testConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	ctx, span := p.StartSpan(ctx, observability.SpanDeliveryAttempt,
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(map[string]any{observability.AttrAttempt: 1}),
	)
	defer span.End()

	sc := span.SpanContext()
	require.True(t, sc.IsValid())

	header := http.Header{}
	p.Inject(ctx, observability.HTTPHeaderCarrier(header))
	assert.Contains(t, header.Get("Traceparent"), sc.TraceID)

	extracted := p.Extract(context.Background(), observability.HTTPHeaderCarrier(header))
	remote := p.SpanFromContext(extracted).SpanContext()
	assert.Equal(t, sc.TraceID, remote.TraceID)
	assert.True(t, remote.Remote)
}

func TestRegisteredByName(t *testing.T) {
	ctx := context.Background()

	mp, err := observability.NewMetricsProviderByName(ctx, "otel", testConfig())
	require.NoError(t, err)
	assert.NoError(t, mp.Close(ctx))

	tp, err := observability.NewTracingProviderByName(ctx, "otel", testConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOn")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOff")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestNewResource(t *testing.T) {
	res, err := newResource(testConfig())
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "relayproxy-test", attrs["service.name"])
	assert.Equal(t, "test", attrs["service.version"])
	assert.Equal(t, "test", attrs["environment"])
}
