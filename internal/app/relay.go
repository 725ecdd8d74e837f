package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/stiffinWanjohi/relayproxy/internal/api"
	"github.com/stiffinWanjohi/relayproxy/internal/delivery"
	"github.com/stiffinWanjohi/relayproxy/internal/ingest"
	"github.com/stiffinWanjohi/relayproxy/internal/logstream"
	"github.com/stiffinWanjohi/relayproxy/internal/queue"
	"github.com/stiffinWanjohi/relayproxy/pkg/backoff"
	"github.com/stiffinWanjohi/relayproxy/pkg/signature"
)

// Relay is one wired instance: channel, adapter, forwarder and both HTTP surfaces.
type Relay struct {
	Channel   *queue.Channel
	Adapter   *ingest.Adapter
	Sender    *delivery.Sender
	Forwarder *delivery.Forwarder
	Ingest    *api.Server
	Admin     *api.AdminServer
	Stream    *logstream.Hub

	svc *Services
}

// NewRelay wires the relay components from svc.
func NewRelay(svc *Services) (*Relay, error) {
	cfg := svc.Config

	policy, err := delivery.ParseRequeuePolicy(cfg.Relay.RequeuePolicy)
	if err != nil {
		return nil, err
	}

	channel := queue.NewChannel(cfg.Relay.QueueCapacity, queue.WithMetrics(svc.Metrics))

	adapter := ingest.NewAdapter(channel).
		WithMaxPayloadSize(cfg.Relay.MaxPayloadSize).
		WithMetrics(svc.Metrics).
		WithTracer(svc.Tracer)
	if svc.Redis != nil {
		limiter := ingest.NewRateLimiter(svc.Redis, cfg.Redis.IngestRateLimit).WithKey(cfg.Redis.RateLimitKey)
		adapter = adapter.WithLimiter(limiter)
	}

	sender := delivery.NewSender(cfg.Relay.DestinationURL).
		WithTimeout(cfg.Relay.DeliveryTimeout).
		WithUserAgent("relayproxy/" + svc.Version).
		WithTracer(svc.Tracer)
	if cfg.Relay.SigningSecret != "" {
		sender = sender.WithSigner(signature.NewSigner(cfg.Relay.SigningSecret))
	}

	hub := logstream.NewHub(logstream.DefaultBufferSize)

	forwarder := delivery.NewForwarder(channel, sender, delivery.ForwarderConfig{
		Backoff:  backoff.NewConstant(cfg.Relay.RetryDelay).WithJitter(cfg.Relay.RetryJitter),
		Policy:   policy,
		Metrics:  svc.Metrics,
		Observer: logstream.NewDeliveryLogger(hub),
	})

	return &Relay{
		Channel:   channel,
		Adapter:   adapter,
		Sender:    sender,
		Forwarder: forwarder,
		Ingest: api.NewServer(adapter, api.ServerConfig{
			EndpointPath: cfg.Relay.EndpointPath,
			Metrics:      svc.Metrics,
			Tracer:       svc.Tracer,
		}),
		Admin: api.NewAdminServer(channel, forwarder, api.AdminConfig{
			Version:        svc.Version,
			Destination:    cfg.Relay.DestinationURL,
			MetricsHandler: svc.MetricsHandler,
			Deliveries:     logstream.NewHandler(hub).Router(),
		}),
		Stream: hub,
		svc:    svc,
	}, nil
}

// Listen opens the ingest listener, capped at MaxConnections, and the admin
// listener. The admin listener is nil when disabled.
func (r *Relay) Listen() (ingestLn, adminLn net.Listener, err error) {
	cfg := r.svc.Config

	ingestLn, err = net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ingestLn = netutil.LimitListener(ingestLn, cfg.Server.MaxConnections)
	}

	if cfg.Admin.Addr == "" {
		return ingestLn, nil, nil
	}
	adminLn, err = net.Listen("tcp", cfg.Admin.Addr)
	if err != nil {
		_ = ingestLn.Close()
		return nil, nil, fmt.Errorf("listen on %s: %w", cfg.Admin.Addr, err)
	}
	return ingestLn, adminLn, nil
}

// Serve runs the forwarder and both servers until ctx is done or one of them
// fails. adminLn may be nil. Payloads still queued when it returns are lost.
func (r *Relay) Serve(ctx context.Context, ingestLn, adminLn net.Listener) error {
	cfg := r.svc.Config
	g, gctx := errgroup.WithContext(ctx)

	ingestSrv := &http.Server{
		Handler:      r.Ingest.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{ingestSrv}

	g.Go(func() error {
		return r.Forwarder.Run(gctx)
	})

	g.Go(func() error {
		log.Info("ingest server listening",
			"addr", ingestLn.Addr().String(),
			"path", cfg.Relay.EndpointPath,
			"destination", cfg.Relay.DestinationURL,
		)
		return serve(ingestSrv, ingestLn)
	})

	if adminLn != nil {
		adminSrv := &http.Server{
			Handler:           r.Admin.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		adminSrv.RegisterOnShutdown(r.Stream.Close)
		servers = append(servers, adminSrv)
		g.Go(func() error {
			log.Info("admin server listening", "addr", adminLn.Addr().String())
			return serve(adminSrv, adminLn)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down relay", "pending", r.Channel.Len())

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run builds a relay from svc, listens on the configured addresses and serves
// until ctx is done.
func Run(ctx context.Context, svc *Services) error {
	relay, err := NewRelay(svc)
	if err != nil {
		return err
	}

	ingestLn, adminLn, err := relay.Listen()
	if err != nil {
		return err
	}

	err = relay.Serve(ctx, ingestLn, adminLn)
	log.Info("relay stopped")
	return err
}
