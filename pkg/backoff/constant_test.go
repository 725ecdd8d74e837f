package backoff

import (
	"testing"
	"time"
)

func TestNewConstant(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		want  time.Duration
	}{
		{"configured", 250 * time.Millisecond, 250 * time.Millisecond},
		{"zero falls back", 0, DefaultDelay},
		{"negative falls back", -time.Second, DefaultDelay},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConstant(tc.delay)
			if c.Delay() != tc.want {
				t.Errorf("Delay() = %v, want %v", c.Delay(), tc.want)
			}
		})
	}
}

func TestConstant_DurationIgnoresAttempt(t *testing.T) {
	c := NewConstant(time.Second)

	for _, attempt := range []int{0, 1, 2, 10, 1000} {
		if got := c.Duration(attempt); got != time.Second {
			t.Errorf("Duration(%d) = %v, want 1s", attempt, got)
		}
	}
}

func TestConstant_WithJitter(t *testing.T) {
	base := time.Second
	c := NewConstant(base).WithJitter(0.2)

	lo := time.Duration(float64(base) * 0.8)
	hi := time.Duration(float64(base) * 1.2)
	for i := 0; i < 200; i++ {
		d := c.Duration(1)
		if d < lo || d > hi {
			t.Fatalf("Duration() = %v, outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestConstant_WithJitterClamps(t *testing.T) {
	c := NewConstant(time.Second)

	if got := c.WithJitter(-1).jitterRatio; got != 0 {
		t.Errorf("negative ratio clamped to %v, want 0", got)
	}
	if got := c.WithJitter(5).jitterRatio; got != 1 {
		t.Errorf("oversized ratio clamped to %v, want 1", got)
	}
	if c.jitterRatio != 0 {
		t.Error("WithJitter must not modify the receiver")
	}
}
