// Package retry provides the retry policy for HTTP sink delivery: exponential
// backoff with a configurable cap and optional jitter, plus the
// retryable-vs-permanent classification of delivery failures.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy defines the backoff behavior for failed delivery attempts.
//
// The deterministic schedule follows:
//
//	delay(attempt) = min(BaseDelay * Multiplier^(attempt-1), MaxDelay)
//
// where attempt is 1-based (the delay before the first retry is BaseDelay).
// When Jitter is enabled, a random duration in [0, BaseDelay) is added on top
// to avoid thundering-herd resubmission when many envelopes fail together.
//
// Example with defaults (1s base, 2.0 multiplier, 1m max, 5 attempts):
//
//	Retry 1: 1s
//	Retry 2: 2s
//	Retry 3: 4s
//	Retry 4: 8s
//	(5th failure → abandoned)
type Strategy struct {
	MaxAttempts int           // Retryable failures tolerated before abandoning
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap on the computed delay
	Multiplier  float64       // Backoff multiplier (e.g., 2.0 for doubling)
	Jitter      bool          // Add random jitter in [0, BaseDelay)
}

// DefaultStrategy returns the default retry strategy: 5 attempts,
// 1s → 1m exponential backoff with doubling, no jitter.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    1 * time.Minute,
		Multiplier:  2.0,
		Jitter:      false,
	}
}

// Delay returns the backoff delay to wait before re-attempting after the
// given 1-based attempt number. The deterministic part is monotonically
// non-decreasing in the attempt number and capped at MaxDelay.
func (s Strategy) Delay(attempt int) time.Duration {
	if s.BaseDelay <= 0 {
		return 0
	}

	delay := s.BaseDelay
	if attempt > 1 {
		scaled := float64(s.BaseDelay) * math.Pow(s.Multiplier, float64(attempt-1))
		if scaled > float64(s.MaxDelay) {
			delay = s.MaxDelay
		} else {
			delay = time.Duration(scaled)
		}
	}
	if delay > s.MaxDelay {
		delay = s.MaxDelay
	}

	if s.Jitter {
		delay += time.Duration(rand.Int64N(int64(s.BaseDelay)))
	}
	return delay
}

// Exhausted reports whether the retry budget is spent after the given number
// of recorded retryable failures.
func (s Strategy) Exhausted(attempt int) bool {
	return attempt >= s.MaxAttempts
}

// Schedule returns a human-readable description of the retry schedule,
// useful for startup logs and documentation.
//
// Example output:
//
//	Retry Schedule:
//	  Retry 1: after 1s
//	  Retry 2: after 2s
//	  ...
//	  → Abandon after 5 failed attempts
func (s Strategy) Schedule() string {
	schedule := "Retry Schedule:\n"
	for i := 1; i < s.MaxAttempts; i++ {
		schedule += fmt.Sprintf("  Retry %d: after %v\n", i, s.Delay(i))
	}
	schedule += fmt.Sprintf("  → Abandon after %d failed attempts\n", s.MaxAttempts)
	return schedule
}
