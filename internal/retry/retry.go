// Package retry decides whether a failed download attempt is re-enqueued
// and with what delay.
package retry

import (
	"time"

	"github.com/vgrab/vgrab/internal/domain"
)

// Default policy bounds.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy bounds retries per job: only transient failures are retried, a
// fixed attempt cap applies, and each retry waits an exponentially growing
// delay up to a cap.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when the config does not override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Decide returns whether the job should be re-enqueued after the given
// outcome, and the backoff delay to apply before it becomes eligible again.
// job.Attempts must already count the attempt that produced the outcome.
func (p Policy) Decide(job *domain.Job, out domain.Outcome) (bool, time.Duration) {
	if out.Kind != domain.OutcomeFailure {
		return false, 0
	}
	if !out.Failure.Transient() {
		return false, 0
	}
	if job.Attempts >= p.MaxAttempts {
		return false, 0
	}
	return true, p.Backoff(job.Attempts)
}

// Backoff returns the delay before retry number attempt+1: base * 2^(n-1),
// capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
