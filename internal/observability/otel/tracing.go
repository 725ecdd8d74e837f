package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

func init() {
	observability.RegisterTracingProvider("otel", func(ctx context.Context, cfg observability.ProviderConfig) (observability.TracingProvider, error) {
		return NewTracingProvider(ctx, cfg)
	})
}

// TracingProvider implements observability.TracingProvider with W3C trace-context propagation.
type TracingProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator
}

var _ observability.TracingProvider = (*TracingProvider)(nil)

// NewTracingProvider builds a TracerProvider sampling at cfg.SampleRate.
func NewTracingProvider(ctx context.Context, cfg observability.ProviderConfig) (*TracingProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	}

	if cfg.Endpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	return &TracingProvider{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		prop:     prop,
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func (p *TracingProvider) StartSpan(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	options := observability.ApplyOptions(opts...)

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(spanKind(options.Kind))}
	if len(options.Attributes) > 0 {
		attrs := make([]attribute.KeyValue, 0, len(options.Attributes))
		for k, v := range options.Attributes {
			attrs = append(attrs, attributeFromAny(k, v))
		}
		startOpts = append(startOpts, trace.WithAttributes(attrs...))
	}

	ctx, span := p.tracer.Start(ctx, name, startOpts...)
	return ctx, &otelSpan{span: span}
}

func (p *TracingProvider) SpanFromContext(ctx context.Context) observability.Span {
	return &otelSpan{span: trace.SpanFromContext(ctx)}
}

func (p *TracingProvider) Inject(ctx context.Context, carrier observability.TextMapCarrier) {
	p.prop.Inject(ctx, carrier)
}

func (p *TracingProvider) Extract(ctx context.Context, carrier observability.TextMapCarrier) context.Context {
	return p.prop.Extract(ctx, carrier)
}

func (p *TracingProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(attributeFromAny(key, value))
}

func (s *otelSpan) SetStatus(status observability.SpanStatus, description string) {
	switch status {
	case observability.SpanStatusOK:
		s.span.SetStatus(codes.Ok, description)
	case observability.SpanStatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }

func (s *otelSpan) AddEvent(name string, attributes map[string]any) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attributeFromAny(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s *otelSpan) SpanContext() observability.SpanContext {
	sc := s.span.SpanContext()
	return observability.SpanContext{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
		Remote:     sc.IsRemote(),
	}
}

func spanKind(kind observability.SpanKind) trace.SpanKind {
	switch kind {
	case observability.SpanKindServer:
		return trace.SpanKindServer
	case observability.SpanKindClient:
		return trace.SpanKindClient
	case observability.SpanKindProducer:
		return trace.SpanKindProducer
	case observability.SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}
