package observability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when no factory is registered under a name.
var ErrUnknownProvider = errors.New("unknown observability provider")

// ProviderConfig is passed to metrics and tracing provider factories.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string            // OTLP endpoint, empty disables export
	SampleRate     float64           // tracing only
	Options        map[string]string // provider-specific options
}

// MetricsProviderFactory creates a MetricsProvider from configuration.
type MetricsProviderFactory func(ctx context.Context, cfg ProviderConfig) (MetricsProvider, error)

// TracingProviderFactory creates a TracingProvider from configuration.
type TracingProviderFactory func(ctx context.Context, cfg ProviderConfig) (TracingProvider, error)

var (
	registryMu       sync.RWMutex
	metricsFactories = make(map[string]MetricsProviderFactory)
	tracingFactories = make(map[string]TracingProviderFactory)
)

// RegisterMetricsProvider registers a metrics provider factory.
// Provider packages call this from init().
func RegisterMetricsProvider(name string, factory MetricsProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	metricsFactories[name] = factory
}

// RegisterTracingProvider registers a tracing provider factory.
func RegisterTracingProvider(name string, factory TracingProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	tracingFactories[name] = factory
}

// NewMetricsProviderByName creates a metrics provider by name.
// An empty name or "noop" yields a NoopMetricsProvider.
func NewMetricsProviderByName(ctx context.Context, name string, cfg ProviderConfig) (MetricsProvider, error) {
	if name == "" || name == "noop" {
		return &NoopMetricsProvider{}, nil
	}

	registryMu.RLock()
	factory, ok := metricsFactories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: metrics %q (available: %v)", ErrUnknownProvider, name, ListMetricsProviders())
	}
	return factory(ctx, cfg)
}

// NewTracingProviderByName creates a tracing provider by name.
// An empty name or "noop" yields a NoopTracingProvider.
func NewTracingProviderByName(ctx context.Context, name string, cfg ProviderConfig) (TracingProvider, error) {
	if name == "" || name == "noop" {
		return &NoopTracingProvider{}, nil
	}

	registryMu.RLock()
	factory, ok := tracingFactories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: tracing %q (available: %v)", ErrUnknownProvider, name, ListTracingProviders())
	}
	return factory(ctx, cfg)
}

// ListMetricsProviders returns the registered metrics provider names, sorted.
func ListMetricsProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(metricsFactories))
	for name := range metricsFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTracingProviders returns the registered tracing provider names, sorted.
func ListTracingProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(tracingFactories))
	for name := range tracingFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
