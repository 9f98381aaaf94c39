package dynawire

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ThrottlePolicy decides how retryable failures are paced. Attempts returns
// a fresh schedule for one request: before every retry the schedule is
// asked, with the 1-based retry number and the time spent on the request so
// far, how long to wait, or false to give up. Schedules may keep state
// between calls; policies must be safe for concurrent requests.
type ThrottlePolicy interface {
	Attempts() DelayFunc
}

// DelayFunc is one request's retry schedule.
type DelayFunc func(attempt int, elapsed time.Duration) (delay time.Duration, retry bool)

type policyFunc func() DelayFunc

func (f policyFunc) Attempts() DelayFunc { return f() }

// DefaultThrottling is the policy NewClient starts with: full-jitter
// exponential backoff between 50ms and 1s, giving up after a minute.
func DefaultThrottling() ThrottlePolicy {
	return ExponentialBackoffThrottling(50*time.Millisecond, time.Second, time.Minute)
}

// ExponentialBackoffThrottling waits a random share of base doubled per
// attempt, capped at maxDelay. It gives up once a retry would push the
// request past timeLimit.
func ExponentialBackoffThrottling(base, maxDelay, timeLimit time.Duration) ThrottlePolicy {
	return policyFunc(func() DelayFunc {
		return func(attempt int, elapsed time.Duration) (time.Duration, bool) {
			ceiling := maxDelay
			if attempt < 32 {
				if scaled := base << (attempt - 1); scaled > 0 && scaled < maxDelay {
					ceiling = scaled
				}
			}
			return withinLimit(rand.N(ceiling+1), elapsed, timeLimit)
		}
	})
}

// DecorrelatedJitterThrottling waits a random duration between base and
// three times the previous wait, capped at maxDelay. The spread decouples
// competing clients faster than plain exponential backoff.
func DecorrelatedJitterThrottling(base, maxDelay, timeLimit time.Duration) ThrottlePolicy {
	return policyFunc(func() DelayFunc {
		prev := base
		return func(_ int, elapsed time.Duration) (time.Duration, bool) {
			upper := prev * 3
			if upper > maxDelay {
				upper = maxDelay
			}
			delay := base
			if upper > base {
				delay = base + rand.N(upper-base+1)
			}
			prev = delay
			return withinLimit(delay, elapsed, timeLimit)
		}
	})
}

// FromBackOff adapts a cenkalti/backoff policy. The factory runs once per
// request so concurrent requests never share backoff state.
func FromBackOff(factory func() backoff.BackOff) ThrottlePolicy {
	return policyFunc(func() DelayFunc {
		b := factory()
		b.Reset()
		return func(int, time.Duration) (time.Duration, bool) {
			next := b.NextBackOff()
			if next == backoff.Stop {
				return 0, false
			}
			return next, true
		}
	})
}

// NoThrottling surfaces the first retryable error instead of waiting.
// Useful against local endpoints and in tests.
func NoThrottling() ThrottlePolicy {
	return policyFunc(func() DelayFunc {
		return func(int, time.Duration) (time.Duration, bool) { return 0, false }
	})
}

func withinLimit(delay, elapsed, limit time.Duration) (time.Duration, bool) {
	if elapsed+delay > limit {
		return 0, false
	}
	return delay, true
}
