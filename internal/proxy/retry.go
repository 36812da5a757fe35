package proxy

import (
	"math"
	"time"
)

// RetryConfig configures upstream retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed backoff.
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns sensible defaults for upstream fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff computes the delay before retry number attempt (zero-based). When
// the upstream supplied a Retry-After hint it replaces the configured base,
// so throttled requests back off at least as long as the upstream asked for.
func (c RetryConfig) Backoff(attempt int, hint time.Duration) time.Duration {
	base := float64(c.InitialBackoff)
	if hint > 0 {
		base = float64(hint)
	}
	backoff := base * math.Pow(c.BackoffMultiplier, float64(attempt))
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	return time.Duration(backoff)
}
