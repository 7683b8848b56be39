package client

import (
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next wait time.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
	// Truncate rounds each intermediate delay down to a multiple of itself.
	// Zero disables rounding.
	Truncate time.Duration
}

// Reconnect backoff bounds.
const (
	MinReconnectDelay = 5 * time.Second
	MaxReconnectDelay = 600 * time.Second
	ReconnectAttempts = 5
)

// DefaultBackoff returns a sensible default strategy.
// Base: 100ms, Max: 5s, Factor: 2.0, Jitter: 0.2
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// ReconnectBackoff starts at max(timeout, 5s) and grows by half each
// attempt, truncated to whole seconds and capped at 600s.
func ReconnectBackoff(timeout time.Duration) *ExponentialBackoff {
	if timeout < MinReconnectDelay {
		timeout = MinReconnectDelay
	}
	return &ExponentialBackoff{
		Base:     timeout,
		Max:      MaxReconnectDelay,
		Factor:   1.5,
		Truncate: time.Second,
	}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Factor
		if b.Truncate > 0 {
			delay = float64(time.Duration(delay) / b.Truncate * b.Truncate)
		}
		if delay > float64(b.Max) {
			delay = float64(b.Max)
			break
		}
	}

	// Apply cap
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	// delay * (1 +/- Jitter), predictable enough for latency budgets.
	if b.Jitter > 0 {
		jitterFactor := (rand.Float64()*2 - 1) * b.Jitter // Range [-Jitter, +Jitter]
		delay += delay * jitterFactor
	}

	if delay < 0 {
		return 0
	}

	return time.Duration(delay)
}

// Schedule returns the first n delays.
func Schedule(b BackoffStrategy, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = b.Next(i)
	}
	return out
}
