package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
	"github.com/stiffinWanjohi/relayproxy/internal/queue"
	"github.com/stiffinWanjohi/relayproxy/pkg/backoff"
)

var log = logging.Component("forwarder")

// ErrAlreadyRunning is returned by Run when the forwarder loop is already active.
var ErrAlreadyRunning = errors.New("forwarder is already running")

// RequeuePolicy decides where a failed payload waits for its next attempt.
type RequeuePolicy string

const (
	// RequeueTail appends the failed payload behind everything already queued.
	// Later payloads may overtake it.
	RequeueTail RequeuePolicy = "tail"

	// RequeueHead keeps the failed payload in hand and retries it before
	// taking anything else from the channel, preserving arrival order.
	RequeueHead RequeuePolicy = "head"
)

// ParseRequeuePolicy converts a configuration string into a policy.
func ParseRequeuePolicy(s string) (RequeuePolicy, error) {
	switch p := RequeuePolicy(s); p {
	case RequeueTail, RequeueHead:
		return p, nil
	case "":
		return RequeueTail, nil
	default:
		return "", fmt.Errorf("unknown requeue policy %q", s)
	}
}

// Observer is told about every finished attempt and about the loop stopping.
// Calls come from the forwarder goroutine and must not block.
type Observer interface {
	Delivered(p domain.Payload, attempt int, result domain.DeliveryResult)
	Failed(p domain.Payload, attempt int, result domain.DeliveryResult, retryIn time.Duration)
	Stopped(lost int)
}

// ForwarderConfig holds forwarder configuration.
type ForwarderConfig struct {
	Backoff  backoff.Strategy
	Policy   RequeuePolicy
	Clock    clock.Clock
	Metrics  *observability.Metrics
	Observer Observer // optional
}

// DefaultForwarderConfig returns a one-second constant delay with tail requeue.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		Backoff: backoff.NewConstant(backoff.DefaultDelay),
		Policy:  RequeueTail,
		Clock:   clock.New(),
	}
}

// Stats is a point-in-time view of forwarding progress.
type Stats struct {
	Running         bool       `json:"running"`
	Delivered       int64      `json:"delivered"`
	FailedAttempts  int64      `json:"failed_attempts"`
	Requeued        int64      `json:"requeued"`
	InFlight        bool       `json:"in_flight"`
	LastDeliveredAt *time.Time `json:"last_delivered_at,omitempty"`
}

// Forwarder drains a channel into a Deliverer, one payload at a time.
// A payload that fails is retried after the backoff delay until it succeeds
// or the forwarder stops; there is no attempt limit.
type Forwarder struct {
	channel *queue.Channel
	sender  Deliverer
	host    string
	backoff backoff.Strategy
	policy  RequeuePolicy
	clock   clock.Clock
	metrics  *observability.Metrics
	observer Observer

	running         atomic.Bool
	inFlight        atomic.Bool
	delivered       atomic.Int64
	failed          atomic.Int64
	requeued        atomic.Int64
	lastDeliveredAt atomic.Pointer[time.Time]

	// attempts counts failures per payload still awaiting delivery.
	// Only touched by the Run goroutine.
	attempts map[uuid.UUID]int
}

// NewForwarder creates a forwarder. Zero-valued config fields take their defaults.
func NewForwarder(channel *queue.Channel, sender Deliverer, config ForwarderConfig) *Forwarder {
	defaults := DefaultForwarderConfig()
	if config.Backoff == nil {
		config.Backoff = defaults.Backoff
	}
	if config.Policy == "" {
		config.Policy = defaults.Policy
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}

	host := "unknown"
	if h, ok := sender.(interface{ Host() string }); ok {
		host = h.Host()
	}

	return &Forwarder{
		channel:  channel,
		sender:   sender,
		host:     host,
		backoff:  config.Backoff,
		policy:   config.Policy,
		clock:    config.Clock,
		metrics:  config.Metrics,
		observer: config.Observer,
		attempts: make(map[uuid.UUID]int),
	}
}

// Run forwards payloads until ctx is done, then returns nil. Payloads still
// queued or held for retry at that point are abandoned.
func (f *Forwarder) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		log.Warn("forwarder start ignored, loop already active")
		return ErrAlreadyRunning
	}
	defer f.running.Store(false)

	log.Info("forwarder started", "destination_host", f.host, "policy", f.policy)

	var (
		held    domain.Payload
		holding bool
	)

	for {
		p := held
		if !holding {
			var err error
			p, err = f.channel.Dequeue(ctx)
			if err != nil {
				f.stopped(ctx, false)
				return nil
			}
		}
		holding = false

		f.inFlight.Store(true)
		result := f.sender.Send(ctx, p)
		if result.Success {
			f.inFlight.Store(false)
			f.recordSuccess(ctx, p, result)
			continue
		}

		attempt := f.recordFailure(ctx, p, result)
		delay := f.backoff.Duration(attempt)
		if f.observer != nil {
			f.observer.Failed(p, attempt, result, delay)
		}

		switch f.policy {
		case RequeueHead:
			held, holding = p, true
		default:
			f.channel.Requeue(p)
			f.requeued.Add(1)
			f.inFlight.Store(false)
		}

		if !f.wait(ctx, delay) {
			f.stopped(ctx, holding)
			return nil
		}
	}
}

func (f *Forwarder) recordSuccess(ctx context.Context, p domain.Payload, result domain.DeliveryResult) {
	attempts := f.attempts[p.ID()] + 1
	delete(f.attempts, p.ID())

	f.delivered.Add(1)
	now := f.clock.Now().UTC()
	f.lastDeliveredAt.Store(&now)
	f.metrics.DeliverySucceeded(ctx, f.host, result.Duration)
	f.metrics.DeliveryAttempts(ctx, attempts)

	log.Debug("payload delivered",
		"payload_id", p.ID(),
		"size", p.Size(),
		"attempts", attempts,
		"duration_ms", result.Duration.Milliseconds(),
	)
	if f.observer != nil {
		f.observer.Delivered(p, attempts, result)
	}
}

func (f *Forwarder) recordFailure(ctx context.Context, p domain.Payload, result domain.DeliveryResult) int {
	attempt := f.attempts[p.ID()] + 1
	f.attempts[p.ID()] = attempt

	f.failed.Add(1)
	reason := result.FailureReason()
	f.metrics.DeliveryFailed(ctx, f.host, reason)

	// A failure caused by shutdown is not worth a warning.
	if ctx.Err() != nil {
		return attempt
	}
	log.Warn("delivery failed, will retry",
		"payload_id", p.ID(),
		"attempt", attempt,
		"status_code", result.StatusCode,
		"reason", reason,
		"error", result.Error,
	)
	return attempt
}

// wait blocks for d on the forwarder's clock. It returns false if ctx ends first.
func (f *Forwarder) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := f.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (f *Forwarder) stopped(ctx context.Context, holding bool) {
	lost := f.channel.Len()
	if holding {
		lost++
	}
	f.inFlight.Store(false)

	// ctx is already done; record against a fresh context.
	f.metrics.PayloadsLost(context.WithoutCancel(ctx), lost)
	if f.observer != nil {
		f.observer.Stopped(lost)
	}
	if lost > 0 {
		log.Warn("forwarder stopped with undelivered payloads", "lost", lost)
		return
	}
	log.Info("forwarder stopped")
}

// Running reports whether Run is active.
func (f *Forwarder) Running() bool {
	return f.running.Load()
}

// Stats returns counters since creation.
func (f *Forwarder) Stats() Stats {
	s := Stats{
		Running:        f.running.Load(),
		Delivered:      f.delivered.Load(),
		FailedAttempts: f.failed.Load(),
		Requeued:       f.requeued.Load(),
		InFlight:       f.inFlight.Load(),
	}
	if t := f.lastDeliveredAt.Load(); t != nil {
		last := *t
		s.LastDeliveredAt = &last
	}
	return s
}
