package observability

import (
	"context"
	"time"
)

// NoopMetricsProvider is a metrics provider that does nothing.
type NoopMetricsProvider struct{}

var _ MetricsProvider = (*NoopMetricsProvider)(nil)

func (n *NoopMetricsProvider) Counter(context.Context, string, int64, map[string]string) {}
func (n *NoopMetricsProvider) Gauge(context.Context, string, float64, map[string]string) {}
func (n *NoopMetricsProvider) Histogram(context.Context, string, float64, map[string]string) {}
func (n *NoopMetricsProvider) Timing(context.Context, string, time.Duration, map[string]string) {}
func (n *NoopMetricsProvider) Flush(context.Context) error { return nil }
func (n *NoopMetricsProvider) Close(context.Context) error { return nil }

// NoopTracingProvider is a tracing provider that does nothing.
type NoopTracingProvider struct{}

var _ TracingProvider = (*NoopTracingProvider)(nil)

func (n *NoopTracingProvider) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (n *NoopTracingProvider) SpanFromContext(context.Context) Span { return noopSpan{} }
func (n *NoopTracingProvider) Inject(context.Context, TextMapCarrier) {}
func (n *NoopTracingProvider) Extract(ctx context.Context, _ TextMapCarrier) context.Context {
	return ctx
}
func (n *NoopTracingProvider) Shutdown(context.Context) error { return nil }

type noopSpan struct{}

func (noopSpan) End() {}
func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) SetStatus(SpanStatus, string) {}
func (noopSpan) RecordError(error) {}
func (noopSpan) AddEvent(string, map[string]any) {}
func (noopSpan) SpanContext() SpanContext { return SpanContext{} }
