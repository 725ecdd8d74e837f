// Package app provides shared application setup and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/stiffinWanjohi/relayproxy/internal/config"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
	_ "github.com/stiffinWanjohi/relayproxy/internal/observability/otel"       // registers "otel"
	_ "github.com/stiffinWanjohi/relayproxy/internal/observability/prometheus" // registers "prometheus"
)

var log = logging.Component("app")

// Services holds all initialized application services.
type Services struct {
	Config         *config.Config
	Version        string
	Redis          *redis.Client // nil unless the ingest rate limiter is enabled
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	MetricsHandler http.Handler // nil unless the metrics provider serves a scrape endpoint

	metricsProvider observability.MetricsProvider
	tracingProvider observability.TracingProvider
}

// Close flushes telemetry and closes connections. It is safe to call once
// on a partially initialized Services.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.metricsProvider != nil {
		if err := s.metricsProvider.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush metrics: %w", err))
		}
		if err := s.metricsProvider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}
	if s.tracingProvider != nil {
		if err := s.tracingProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ConnectRedis connects to Redis. The URL may be a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Redis.URL}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func providerConfig(cfg *config.Config, version string) observability.ProviderConfig {
	return observability.ProviderConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.OTelEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
	}
}

// NewMetricsProvider creates a metrics provider based on configuration.
func NewMetricsProvider(ctx context.Context, cfg *config.Config, version string) (observability.MetricsProvider, *observability.Metrics, error) {
	provider, err := observability.NewMetricsProviderByName(ctx, cfg.Observability.MetricsProvider, providerConfig(cfg, version))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	metrics := observability.NewMetrics(provider, cfg.Observability.ServiceName)
	return provider, metrics, nil
}

// NewTracingProvider creates a tracing provider based on configuration.
func NewTracingProvider(ctx context.Context, cfg *config.Config, version string) (observability.TracingProvider, *observability.Tracer, error) {
	provider, err := observability.NewTracingProviderByName(ctx, cfg.Observability.TracingProvider, providerConfig(cfg, version))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return provider, observability.NewTracer(provider, cfg.Observability.ServiceName), nil
}

// Init initializes every service the relay needs.
// Returns Services which should be closed with Close() when done.
func Init(ctx context.Context, cfg *config.Config, version string) (*Services, error) {
	s := &Services{Config: cfg, Version: version}

	metricsProvider, metrics, err := NewMetricsProvider(ctx, cfg, version)
	if err != nil {
		return nil, err
	}
	s.metricsProvider = metricsProvider
	s.Metrics = metrics
	if hp, ok := metricsProvider.(observability.HandlerProvider); ok {
		s.MetricsHandler = hp.Handler()
	}

	tracingProvider, tracer, err := NewTracingProvider(ctx, cfg, version)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.tracingProvider = tracingProvider
	s.Tracer = tracer

	if cfg.Redis.Enabled() {
		client, err := ConnectRedis(ctx, cfg)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.Redis = client
		log.Info("ingest rate limit enabled", "limit", cfg.Redis.IngestRateLimit, "key", cfg.Redis.RateLimitKey)
	}

	log.Info("observability initialized",
		"metrics", cfg.Observability.MetricsProvider,
		"tracing", cfg.Observability.TracingProvider,
	)
	return s, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
