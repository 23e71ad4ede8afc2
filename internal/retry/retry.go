// Package retry wraps external calls with bounded retry, backoff and jitter.
// Every provider invocation in the fan-out goes through Do so that transient
// transport faults are absorbed per call without cross-call coordination.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// jitterFraction is the +-20% randomization applied to computed delays.
const jitterFraction = 0.2

// Policy controls retry behavior for a wrapped operation.
type Policy struct {
	MaxAttempts int           // total attempts including the first (minimum 1)
	Delay       time.Duration // base delay before the first retry
	MaxDelay    time.Duration // cap applied to every computed delay
	Backoff     Backoff       // delay growth shape
	Jitter      bool          // randomize delays by +-20%
	RetryIf     func(error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultPolicy returns the policy used when none is configured: three
// attempts, one second base delay, exponential growth capped at ten seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       time.Second,
		MaxDelay:    10 * time.Second,
		Backoff:     BackoffExponential,
		Jitter:      true,
	}
}

// FromSettings builds a Policy from the retry configuration block.
func FromSettings(rs *conf.RetrySettings) Policy {
	p := DefaultPolicy()
	if rs == nil {
		return p
	}
	if rs.MaxAttempts > 0 {
		p.MaxAttempts = rs.MaxAttempts
	}
	if rs.DelayMS > 0 {
		p.Delay = time.Duration(rs.DelayMS) * time.Millisecond
	}
	if rs.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(rs.MaxDelayMS) * time.Millisecond
	}
	switch Backoff(rs.Backoff) {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		p.Backoff = Backoff(rs.Backoff)
	}
	p.Jitter = rs.Jitter
	return p
}

// normalized returns a copy of the policy with zero values replaced by defaults.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	switch p.Backoff {
	case BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		p.Backoff = def.Backoff
	}
	if p.RetryIf == nil {
		p.RetryIf = errors.Retryable
	}
	return p
}

// delayFor computes the sleep before retrying after the given zero-based
// attempt, applying the backoff shape, the cap and optional jitter.
func (p Policy) delayFor(attempt int) time.Duration {
	var delay time.Duration

	switch p.Backoff {
	case BackoffExponential:
		delay = p.Delay << attempt
	case BackoffLinear:
		delay = p.Delay * time.Duration(attempt+1)
	default:
		delay = p.Delay
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter {
		jitter := float64(delay) * jitterFraction
		delay += time.Duration((rand.Float64()*2 - 1) * jitter)
	}

	if delay < 0 {
		delay = 0
	}

	return delay
}

// Do runs op under the policy, retrying transient failures until the attempt
// budget is exhausted or the context ends. The final failure is returned
// unchanged so callers can still branch on its category.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p := policy.normalized()

	var zero T
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, errors.New(err).
				Category(errors.CategoryCancellation).
				Component("retry").
				Build()
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.RetryIf(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		select {
		case <-time.After(p.delayFor(attempt)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}
