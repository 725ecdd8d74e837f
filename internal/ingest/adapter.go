// Package ingest turns inbound submissions into queued payloads.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
	"github.com/stiffinWanjohi/relayproxy/internal/queue"
)

var log = logging.Component("ingest")

// Outcome is the result of one submission.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeOverloaded
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeOverloaded:
		return "overloaded"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// StatusCode maps an outcome to its HTTP status.
func (o Outcome) StatusCode() int {
	switch o {
	case OutcomeAccepted:
		return http.StatusOK
	case OutcomeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// Limiter admits or refuses a submission before its body is read.
type Limiter interface {
	Allow(ctx context.Context) bool
}

// Adapter reads submissions and enqueues them without ever waiting on delivery.
// It is safe for concurrent use.
type Adapter struct {
	channel        *queue.Channel
	maxPayloadSize int64
	limiter        Limiter
	metrics        *observability.Metrics
	tracer         *observability.Tracer
}

// NewAdapter creates an adapter feeding channel, with no size or rate limit.
func NewAdapter(channel *queue.Channel) *Adapter {
	return &Adapter{channel: channel}
}

func (a *Adapter) clone() *Adapter {
	c := *a
	return &c
}

// WithMaxPayloadSize limits body size in bytes; 0 disables the limit.
func (a *Adapter) WithMaxPayloadSize(n int64) *Adapter {
	c := a.clone()
	c.maxPayloadSize = max(n, 0)
	return c
}

// WithLimiter rejects submissions the limiter refuses as overloaded.
func (a *Adapter) WithLimiter(l Limiter) *Adapter {
	c := a.clone()
	c.limiter = l
	return c
}

// WithMetrics records accepted and rejected submissions.
func (a *Adapter) WithMetrics(m *observability.Metrics) *Adapter {
	c := a.clone()
	c.metrics = m
	return c
}

// WithTracer wraps each submission in a span.
func (a *Adapter) WithTracer(t *observability.Tracer) *Adapter {
	c := a.clone()
	c.tracer = t
	return c
}

// MaxPayloadSize returns the configured body limit.
func (a *Adapter) MaxPayloadSize() int64 {
	return a.maxPayloadSize
}

// Submit reads body in full and enqueues it as one payload.
func (a *Adapter) Submit(ctx context.Context, body io.Reader) Outcome {
	ctx, span := a.tracer.StartSpan(ctx, observability.SpanSubmission)
	defer span.End()

	outcome, p, err := a.submit(ctx, body)
	span.SetAttribute(observability.AttrOutcome, outcome.String())

	if outcome == OutcomeAccepted {
		span.SetAttribute(observability.AttrPayloadID, p.ID().String())
		span.SetAttribute(observability.AttrPayloadSize, p.Size())
		a.metrics.SubmissionAccepted(ctx, p.Size())
		log.Debug("submission accepted", "payload_id", p.ID(), "size", p.Size())
		return outcome
	}

	reason := rejectReason(err)
	span.RecordError(err)
	span.SetStatus(observability.SpanStatusError, reason)
	a.metrics.SubmissionRejected(ctx, reason)
	log.Debug("submission rejected", "outcome", outcome, "reason", reason, "error", err)
	return outcome
}

func (a *Adapter) submit(ctx context.Context, body io.Reader) (Outcome, domain.Payload, error) {
	if a.limiter != nil && !a.limiter.Allow(ctx) {
		return OutcomeOverloaded, domain.Payload{}, domain.ErrRateLimited
	}

	if body == nil {
		body = http.NoBody
	}
	if a.maxPayloadSize > 0 {
		body = io.LimitReader(body, a.maxPayloadSize+1)
	}

	p, err := domain.ReadPayload(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return OutcomeMalformed, domain.Payload{}, fmt.Errorf("%w: limit %d bytes", domain.ErrPayloadTooLarge, maxErr.Limit)
		}
		return OutcomeMalformed, domain.Payload{}, fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	if a.maxPayloadSize > 0 && int64(p.Size()) > a.maxPayloadSize {
		return OutcomeMalformed, domain.Payload{}, fmt.Errorf("%w: limit %d bytes", domain.ErrPayloadTooLarge, a.maxPayloadSize)
	}

	if !a.channel.Enqueue(p) {
		return OutcomeOverloaded, domain.Payload{}, domain.ErrQueueFull
	}
	return OutcomeAccepted, p, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return "too_large"
	default:
		return "malformed"
	}
}

// ServeHTTP accepts a submission on any method and answers with the outcome's status.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if a.maxPayloadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, a.maxPayloadSize)
	}

	outcome := a.Submit(r.Context(), body)
	status := outcome.StatusCode()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, outcome.String())
}
