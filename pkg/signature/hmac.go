// Package signature signs forwarded payloads so a destination can verify they
// came through the relay unmodified.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	HeaderSignature = "X-Relayproxy-Signature"
	HeaderTimestamp = "X-Relayproxy-Timestamp"
	HeaderPayloadID = "X-Relayproxy-Payload-Id"

	scheme = "v1"

	// DefaultTolerance is how far a signed timestamp may drift from the
	// verifier's clock in either direction.
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingSignature  = errors.New("missing signature headers")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidTimestamp  = errors.New("invalid signature timestamp")
	ErrSignatureExpired  = errors.New("signature expired")
	ErrTimestampInFuture = errors.New("timestamp is in the future")
)

// Signer computes HMAC-SHA256 signatures over a timestamp and payload bytes.
type Signer struct {
	key []byte
}

// NewSigner creates a signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign returns "v1=<hex>" where hex is HMAC-SHA256(secret, "<unix>.<body>").
func (s *Signer) Sign(ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(strconv.AppendInt(nil, ts.Unix(), 10))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return scheme + "=" + hex.EncodeToString(mac.Sum(nil))
}

// SignHeader sets the signature, timestamp and payload id headers on h.
func (s *Signer) SignHeader(h http.Header, payloadID string, ts time.Time, body []byte) {
	h.Set(HeaderSignature, s.Sign(ts, body))
	h.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	h.Set(HeaderPayloadID, payloadID)
}

// Verifier checks signatures produced by a Signer with the same secret.
type Verifier struct {
	signer    *Signer
	tolerance time.Duration
	clock     clock.Clock
}

// NewVerifier creates a verifier with DefaultTolerance.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		signer:    NewSigner(secret),
		tolerance: DefaultTolerance,
		clock:     clock.New(),
	}
}

// WithTolerance returns a copy accepting timestamps within d of now.
func (v *Verifier) WithTolerance(d time.Duration) *Verifier {
	next := *v
	next.tolerance = d
	return &next
}

// WithClock returns a copy reading the current time from c.
func (v *Verifier) WithClock(c clock.Clock) *Verifier {
	next := *v
	next.clock = c
	return &next
}

// Verify checks sig against ts and body.
func (v *Verifier) Verify(sig string, ts time.Time, body []byte) error {
	now := v.clock.Now()
	if now.Sub(ts) > v.tolerance {
		return ErrSignatureExpired
	}
	if ts.Sub(now) > v.tolerance {
		return ErrTimestampInFuture
	}
	if !hmac.Equal([]byte(sig), []byte(v.signer.Sign(ts, body))) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyHeader reads the headers set by SignHeader and verifies them against body.
func (v *Verifier) VerifyHeader(h http.Header, body []byte) error {
	sig := h.Get(HeaderSignature)
	rawTS := h.Get(HeaderTimestamp)
	if sig == "" || rawTS == "" {
		return ErrMissingSignature
	}
	unix, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	return v.Verify(sig, time.Unix(unix, 0), body)
}
