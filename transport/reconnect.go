package transport

import (
	"math"
	"time"
)

// Reconnection policy defaults.
const (
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
	DefaultBackoffFactor  = 1.5
	DefaultMaxAttempts    = 5
)

// reconnector decides if and when a dropped connection is re-attempted.
// Attempts are strictly sequential; the counter resets on every
// successful open and the policy goes permanently quiet once the attempt
// cap is reached.
type reconnector struct {
	initial     time.Duration
	max         time.Duration
	factor      float64
	maxAttempts int
	attempts    int
}

func newReconnector(initial, max time.Duration, factor float64, maxAttempts int) *reconnector {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &reconnector{initial: initial, max: max, factor: factor, maxAttempts: maxAttempts}
}

func (r *reconnector) shouldRetry() bool {
	return r.attempts < r.maxAttempts
}

// nextDelay returns the delay for the current attempt and advances the
// counter. Callers must check shouldRetry first.
func (r *reconnector) nextDelay() time.Duration {
	d := r.delayFor(r.attempts)
	r.attempts++
	return d
}

func (r *reconnector) delayFor(attempt int) time.Duration {
	d := time.Duration(float64(r.initial) * math.Pow(r.factor, float64(attempt)))
	if d > r.max {
		d = r.max
	}
	return d
}

func (r *reconnector) reset() {
	r.attempts = 0
}
