// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
	Jitter  bool          // randomize each delay in [delay/2, delay)
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	jitter := false
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
		jitter = cfg.Jitter
	}

	if attempt < 1 {
		attempt = 1
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	d := time.Duration(delay)
	if jitter && d > 1 {
		d = d/2 + rand.N(d/2)
	}
	return d
}
