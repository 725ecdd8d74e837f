// Package delivery forwards queued payloads to the downstream destination.
package delivery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
	"github.com/stiffinWanjohi/relayproxy/pkg/signature"
)

var senderLog = logging.Component("sender")

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 30 * time.Second

	// Maximum response body size drained before closing
	maxResponseBodySize = 64 * 1024

	contentType = "application/octet-stream"
)

// Deliverer performs one delivery attempt. Implementations must be safe for
// use by a single goroutine at a time.
type Deliverer interface {
	Send(ctx context.Context, p domain.Payload) domain.DeliveryResult
}

// Sender POSTs payloads to a fixed destination URL.
// Only a 200 response counts as delivered; redirects are not followed.
type Sender struct {
	client      *http.Client
	destination string
	host        string
	userAgent   string
	tracer      *observability.Tracer
	signer      *signature.Signer
}

var _ Deliverer = (*Sender)(nil)

// NewSender creates a sender for destination with the default timeout.
func NewSender(destination string) *Sender {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Sender{
		client: &http.Client{
			Timeout:       DefaultTimeout,
			Transport:     transport,
			CheckRedirect: noRedirect,
		},
		destination: destination,
		host:        hostOf(destination),
		userAgent:   "relayproxy",
	}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func hostOf(destination string) string {
	u, err := url.Parse(destination)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// WithClient sets a custom HTTP client.
func (s *Sender) WithClient(client *http.Client) *Sender {
	return &Sender{
		client:      client,
		destination: s.destination,
		host:        s.host,
		userAgent:   s.userAgent,
		tracer:      s.tracer,
		signer:      s.signer,
	}
}

// WithTimeout sets the per-attempt timeout, keeping the transport.
func (s *Sender) WithTimeout(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return s.WithClient(&http.Client{
		Timeout:       timeout,
		Transport:     s.client.Transport,
		CheckRedirect: s.client.CheckRedirect,
	})
}

// WithUserAgent sets the User-Agent header value.
func (s *Sender) WithUserAgent(userAgent string) *Sender {
	next := s.WithClient(s.client)
	next.userAgent = userAgent
	return next
}

// WithTracer wraps each attempt in a client span and propagates its context.
func (s *Sender) WithTracer(tracer *observability.Tracer) *Sender {
	next := s.WithClient(s.client)
	next.tracer = tracer
	return next
}

// WithSigner signs every attempt with HMAC-SHA256 headers.
func (s *Sender) WithSigner(signer *signature.Signer) *Sender {
	next := s.WithClient(s.client)
	next.signer = signer
	return next
}

// Destination returns the target URL.
func (s *Sender) Destination() string {
	return s.destination
}

// Host returns the destination host, used as a metrics label.
func (s *Sender) Host() string {
	return s.host
}

// Timeout returns the per-attempt timeout.
func (s *Sender) Timeout() time.Duration {
	return s.client.Timeout
}

// Send makes one POST attempt carrying the payload bytes verbatim.
func (s *Sender) Send(ctx context.Context, p domain.Payload) domain.DeliveryResult {
	start := time.Now()

	ctx, span := s.tracer.StartSpan(ctx, observability.SpanDeliveryAttempt,
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(map[string]any{
			observability.AttrPayloadID:   p.ID().String(),
			observability.AttrPayloadSize: p.Size(),
			observability.AttrDestination: s.destination,
		}),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.destination, p.Reader())
	if err != nil {
		senderLog.Error("failed to create request", "payload_id", p.ID(), "destination", s.destination, "error", err)
		span.RecordError(err)
		span.SetStatus(observability.SpanStatusError, err.Error())
		return domain.NewFailureResult(0, err, time.Since(start))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", s.userAgent)
	if s.signer != nil {
		s.signer.SignHeader(req.Header, p.ID().String(), start, p.Bytes())
	}
	s.tracer.Inject(ctx, observability.HTTPHeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		duration := time.Since(start)
		senderLog.Debug("delivery attempt failed",
			"payload_id", p.ID(),
			"destination", s.destination,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		span.RecordError(err)
		span.SetStatus(observability.SpanStatusError, err.Error())
		return domain.NewFailureResult(0, err, duration)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))

	duration := time.Since(start)
	span.SetAttribute(observability.AttrHTTPStatusCode, resp.StatusCode)

	if resp.StatusCode == http.StatusOK {
		span.SetStatus(observability.SpanStatusOK, "")
		return domain.NewSuccessResult(resp.StatusCode, duration)
	}

	senderLog.Debug("delivery rejected by destination",
		"payload_id", p.ID(),
		"destination", s.destination,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	statusErr := &domain.StatusError{StatusCode: resp.StatusCode}
	span.SetStatus(observability.SpanStatusError, statusErr.Error())
	return domain.NewFailureResult(resp.StatusCode, statusErr, duration)
}
