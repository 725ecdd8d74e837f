// Package prometheus exposes relay metrics in the Prometheus text format.
package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

func init() {
	observability.RegisterMetricsProvider("prometheus", func(_ context.Context, cfg observability.ProviderConfig) (observability.MetricsProvider, error) {
		return NewProvider(cfg.ServiceName), nil
	})
}

// Provider implements observability.MetricsProvider on a private registry.
// Vectors are created lazily; a metric name must always be recorded with the same tag keys.
type Provider struct {
	registry  *prometheus.Registry
	namespace string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var (
	_ observability.MetricsProvider = (*Provider)(nil)
	_ observability.HandlerProvider = (*Provider)(nil)
)

// NewProvider creates a provider with Go runtime and process collectors registered.
func NewProvider(namespace string) *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		registry:   registry,
		namespace:  sanitizeName(namespace),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler serves the registry for scraping.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Provider) Counter(_ context.Context, name string, value int64, tags map[string]string) {
	p.counterVec(name, tags).With(toLabels(tags)).Add(float64(value))
}

func (p *Provider) Gauge(_ context.Context, name string, value float64, tags map[string]string) {
	p.gaugeVec(name, tags).With(toLabels(tags)).Set(value)
}

func (p *Provider) Histogram(_ context.Context, name string, value float64, tags map[string]string) {
	p.histogramVec(name, tags, bucketsFor(name)).With(toLabels(tags)).Observe(value)
}

// Timing records seconds, following Prometheus naming conventions.
func (p *Provider) Timing(_ context.Context, name string, duration time.Duration, tags map[string]string) {
	p.histogramVec(name+"_seconds", tags, prometheus.DefBuckets).With(toLabels(tags)).Observe(duration.Seconds())
}

// Flush is a no-op: Prometheus pulls.
func (p *Provider) Flush(context.Context) error { return nil }

func (p *Provider) Close(context.Context) error { return nil }

func (p *Provider) counterVec(name string, tags map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if vec, ok := p.counters[key]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      key + "_total",
		Help:      "Counter for " + name,
	}, labelNames(tags))
	p.registry.MustRegister(vec)
	p.counters[key] = vec
	return vec
}

func (p *Provider) gaugeVec(name string, tags map[string]string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if vec, ok := p.gauges[key]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      key,
		Help:      "Gauge for " + name,
	}, labelNames(tags))
	p.registry.MustRegister(vec)
	p.gauges[key] = vec
	return vec
}

func (p *Provider) histogramVec(name string, tags map[string]string, buckets []float64) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if vec, ok := p.histograms[key]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      key,
		Help:      "Histogram for " + name,
		Buckets:   buckets,
	}, labelNames(tags))
	p.registry.MustRegister(vec)
	p.histograms[key] = vec
	return vec
}

// bucketsFor picks size buckets for byte histograms and small integer
// buckets for everything else.
func bucketsFor(name string) []float64 {
	if strings.HasSuffix(name, "bytes") {
		return prometheus.ExponentialBuckets(64, 4, 10)
	}
	return prometheus.ExponentialBuckets(1, 2, 10)
}

// sanitizeName maps a dotted metric name onto [a-zA-Z_:][a-zA-Z0-9_:]*.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, sanitizeName(k))
	}
	sort.Strings(names)
	return names
}

func toLabels(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for k, v := range tags {
		labels[sanitizeName(k)] = v
	}
	return labels
}
