// Package backoff computes the wait between delivery attempts.
package backoff

import (
	"math/rand/v2"
	"time"
)

// DefaultDelay is the wait after a failed attempt when none is configured.
const DefaultDelay = time.Second

// Strategy returns the wait before the next attempt, given how many attempts
// of the same payload have failed so far (1-indexed).
type Strategy interface {
	Duration(attempt int) time.Duration
}

// Constant waits the same delay after every failure. Retries are unbounded.
type Constant struct {
	delay       time.Duration
	jitterRatio float64
}

var _ Strategy = (*Constant)(nil)

// NewConstant creates a constant strategy with no jitter.
// A non-positive delay falls back to DefaultDelay.
func NewConstant(delay time.Duration) *Constant {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Constant{delay: delay}
}

// WithJitter sets the jitter ratio, clamped to [0, 1].
func (c *Constant) WithJitter(ratio float64) *Constant {
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}
	return &Constant{
		delay:       c.delay,
		jitterRatio: ratio,
	}
}

// Delay returns the configured base delay.
func (c *Constant) Delay() time.Duration {
	return c.delay
}

// Duration returns the delay, independent of attempt.
func (c *Constant) Duration(int) time.Duration {
	return c.addJitter(c.delay)
}

// addJitter adds or subtracts up to jitterRatio of d.
func (c *Constant) addJitter(d time.Duration) time.Duration {
	if c.jitterRatio <= 0 {
		return d
	}

	jitter := float64(d) * c.jitterRatio
	delta := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(d) + delta)
}
