package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelaysMonotonicAndCapped(t *testing.T) {
	r := newReconnector(0, 0, 0, 0) // defaults: 1s, 30s, 1.5, 5 attempts

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
	}
	for k, expected := range want {
		require.Equal(t, expected, r.delayFor(k), "attempt %d", k)
	}

	require.Equal(t, DefaultBackoffMax, r.delayFor(20), "delay is capped at the max")

	for k := 1; k < 25; k++ {
		require.GreaterOrEqual(t, r.delayFor(k), r.delayFor(k-1), "delays never decrease")
	}
}

func TestBackoffAttemptCap(t *testing.T) {
	r := newReconnector(time.Second, 30*time.Second, 1.5, 5)

	for i := 0; i < 5; i++ {
		require.True(t, r.shouldRetry(), "attempt %d allowed", i)
		r.nextDelay()
	}
	require.False(t, r.shouldRetry(), "no sixth attempt after five failures")
}

func TestBackoffResetOnOpen(t *testing.T) {
	r := newReconnector(time.Second, 30*time.Second, 1.5, 5)

	r.nextDelay()
	r.nextDelay()
	require.Equal(t, 2250*time.Millisecond, r.delayFor(r.attempts))

	r.reset()
	require.True(t, r.shouldRetry())
	require.Equal(t, time.Second, r.nextDelay(), "first delay again after reset")
}
