package observability

import (
	"context"
	"net/http"
)

// SpanKind represents the type of span.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

// SpanStatus represents the status of a span.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// Span represents an active trace span.
type Span interface {
	End()
	SetAttribute(key string, value any)
	SetStatus(status SpanStatus, description string)
	RecordError(err error)
	AddEvent(name string, attributes map[string]any)
	SpanContext() SpanContext
}

// SpanContext contains the trace context for propagation.
type SpanContext struct {
	TraceID    string
	SpanID     string
	TraceFlags byte
	TraceState string
	Remote     bool
}

// IsValid returns true if the span context has valid trace and span IDs.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID != "" && sc.SpanID != ""
}

// TracingProvider defines the interface for distributed tracing.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
	Inject(ctx context.Context, carrier TextMapCarrier)
	Extract(ctx context.Context, carrier TextMapCarrier) context.Context
	Shutdown(ctx context.Context) error
}

// SpanOption configures a span.
type SpanOption func(*SpanOptions)

// SpanOptions holds span configuration options.
type SpanOptions struct {
	Kind       SpanKind
	Attributes map[string]any
}

// ApplyOptions applies all options and returns the resulting SpanOptions.
func ApplyOptions(opts ...SpanOption) SpanOptions {
	o := SpanOptions{
		Attributes: make(map[string]any),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(o *SpanOptions) {
		o.Kind = kind
	}
}

// WithAttributes merges initial span attributes.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(o *SpanOptions) {
		for k, v := range attrs {
			o.Attributes[k] = v
		}
	}
}

// TextMapCarrier is a carrier for trace context propagation.
type TextMapCarrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// HTTPHeaderCarrier adapts http.Header to TextMapCarrier.
type HTTPHeaderCarrier map[string][]string

func (c HTTPHeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

func (c HTTPHeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

func (c HTTPHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Tracer wraps a TracingProvider. A nil *Tracer is valid and traces nothing.
type Tracer struct {
	provider    TracingProvider
	serviceName string
}

// NewTracer creates a new Tracer with the given provider.
func NewTracer(provider TracingProvider, serviceName string) *Tracer {
	return &Tracer{
		provider:    provider,
		serviceName: serviceName,
	}
}

// StartSpan starts a new span.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	if t == nil {
		return ctx, noopSpan{}
	}
	return t.provider.StartSpan(ctx, name, opts...)
}

// SpanFromContext returns the current span.
func (t *Tracer) SpanFromContext(ctx context.Context) Span {
	if t == nil {
		return noopSpan{}
	}
	return t.provider.SpanFromContext(ctx)
}

// Inject injects trace context into a carrier.
func (t *Tracer) Inject(ctx context.Context, carrier TextMapCarrier) {
	if t == nil {
		return
	}
	t.provider.Inject(ctx, carrier)
}

// Extract extracts trace context from a carrier.
func (t *Tracer) Extract(ctx context.Context, carrier TextMapCarrier) context.Context {
	if t == nil {
		return ctx
	}
	return t.provider.Extract(ctx, carrier)
}

// Shutdown shuts down the tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Span names.
const (
	SpanHTTPRequest     = "http.request"
	SpanSubmission      = "relay.submit"
	SpanDeliveryAttempt = "relay.delivery.attempt"
)

// Attribute keys.
const (
	AttrPayloadID      = "relay.payload.id"
	AttrPayloadSize    = "relay.payload.size"
	AttrDestination    = "relay.destination"
	AttrAttempt        = "relay.attempt"
	AttrOutcome        = "relay.outcome"
	AttrHTTPMethod     = "http.method"
	AttrHTTPURL        = "http.url"
	AttrHTTPStatusCode = "http.status_code"
)
