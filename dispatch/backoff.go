package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig mirrors the teacher's exponential-with-jitter policy,
// generalized with a configurable cap: spec.md §4.3's default is
// min(60s, 2^min(10, attempt) × 250ms) + uniform(0, 250ms).
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          time.Duration
}

// DefaultBackoff returns spec.md §4.3's default backoff policy.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2,
		Jitter:          250 * time.Millisecond,
	}
}

// Next computes the delay before the given attempt (1-indexed) is
// retried. maxAttempts is enforced by the caller, not here; Next always
// returns a delay.
func (bc BackoffConfig) Next(attempt uint32) time.Duration {
	const expCap = 10
	e := attempt
	if e > expCap {
		e = expCap
	}
	exp := float64(bc.InitialInterval) * math.Pow(bc.Multiplier, float64(e))
	if exp > float64(bc.MaxInterval) {
		exp = float64(bc.MaxInterval)
	}
	d := time.Duration(exp)
	if bc.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(bc.Jitter)))
	}
	return d
}
