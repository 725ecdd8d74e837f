package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

const defaultExportInterval = 15 * time.Second

func init() {
	observability.RegisterMetricsProvider("otel", func(ctx context.Context, cfg observability.ProviderConfig) (observability.MetricsProvider, error) {
		return NewMetricsProvider(ctx, cfg)
	})
}

// MetricsProvider implements observability.MetricsProvider with an SDK MeterProvider.
// Without an endpoint, instruments are recorded but never exported.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

var _ observability.MetricsProvider = (*MetricsProvider)(nil)

// NewMetricsProvider builds a MeterProvider. The "export_interval" option
// overrides the default 15s push interval.
func NewMetricsProvider(ctx context.Context, cfg observability.ProviderConfig) (*MetricsProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Endpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}

		interval := defaultExportInterval
		if raw, ok := cfg.Options["export_interval"]; ok {
			if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
				interval = parsed
			}
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{
		provider:   provider,
		meter:      provider.Meter(cfg.ServiceName),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func (p *MetricsProvider) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	p.counter(name).Add(ctx, value, metric.WithAttributes(tagsToAttributes(tags)...))
}

func (p *MetricsProvider) Gauge(ctx context.Context, name string, value float64, tags map[string]string) {
	p.gauge(name).Record(ctx, value, metric.WithAttributes(tagsToAttributes(tags)...))
}

func (p *MetricsProvider) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	p.histogram(name).Record(ctx, value, metric.WithAttributes(tagsToAttributes(tags)...))
}

func (p *MetricsProvider) Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	p.histogram(name).Record(ctx, duration.Seconds(), metric.WithAttributes(tagsToAttributes(tags)...))
}

func (p *MetricsProvider) Flush(ctx context.Context) error {
	return p.provider.ForceFlush(ctx)
}

func (p *MetricsProvider) Close(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// Instrument creation errors only occur for invalid names; the SDK then
// hands back a no-op instrument, which is what we want.

func (p *MetricsProvider) counter(name string) metric.Int64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[name]
	if !ok {
		c, _ = p.meter.Int64Counter(name)
		p.counters[name] = c
	}
	return c
}

func (p *MetricsProvider) gauge(name string) metric.Float64Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.gauges[name]
	if !ok {
		g, _ = p.meter.Float64Gauge(name)
		p.gauges[name] = g
	}
	return g
}

func (p *MetricsProvider) histogram(name string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histograms[name]
	if !ok {
		h, _ = p.meter.Float64Histogram(name)
		p.histograms[name] = h
	}
	return h
}
