package dynawire

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffThrottling(t *testing.T) {
	policy := ExponentialBackoffThrottling(50*time.Millisecond, time.Second, time.Minute)

	t.Run("delays stay under the doubling ceiling", func(t *testing.T) {
		schedule := policy.Attempts()
		for attempt := 1; attempt <= 10; attempt++ {
			delay, retry := schedule(attempt, 0)
			require.True(t, retry)
			ceiling := 50 * time.Millisecond << (attempt - 1)
			if ceiling > time.Second {
				ceiling = time.Second
			}
			assert.GreaterOrEqual(t, delay, time.Duration(0))
			assert.LessOrEqual(t, delay, ceiling)
		}
	})

	t.Run("gives up once the time limit is spent", func(t *testing.T) {
		schedule := policy.Attempts()
		_, retry := schedule(1, time.Minute+time.Millisecond)
		assert.False(t, retry)
	})

	t.Run("large attempt numbers saturate at the cap", func(t *testing.T) {
		schedule := policy.Attempts()
		delay, retry := schedule(500, 0)
		require.True(t, retry)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, time.Second)
	})
}

func TestDecorrelatedJitterThrottling(t *testing.T) {
	base := 10 * time.Millisecond
	maxDelay := 200 * time.Millisecond
	policy := DecorrelatedJitterThrottling(base, maxDelay, time.Minute)

	t.Run("walks between base and three times the previous wait", func(t *testing.T) {
		schedule := policy.Attempts()
		prev := base
		for attempt := 1; attempt <= 8; attempt++ {
			delay, retry := schedule(attempt, 0)
			require.True(t, retry)
			upper := prev * 3
			if upper > maxDelay {
				upper = maxDelay
			}
			assert.GreaterOrEqual(t, delay, base)
			assert.LessOrEqual(t, delay, upper)
			prev = delay
		}
	})

	t.Run("fresh schedules start from base again", func(t *testing.T) {
		warm := policy.Attempts()
		for attempt := 1; attempt <= 8; attempt++ {
			warm(attempt, 0)
		}
		fresh := policy.Attempts()
		delay, retry := fresh(1, 0)
		require.True(t, retry)
		assert.LessOrEqual(t, delay, 3*base)
	})

	t.Run("respects the time limit", func(t *testing.T) {
		schedule := policy.Attempts()
		_, retry := schedule(1, time.Minute+time.Millisecond)
		assert.False(t, retry)
	})
}

func TestFromBackOff(t *testing.T) {
	policy := FromBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	})

	t.Run("stops when the wrapped policy stops", func(t *testing.T) {
		schedule := policy.Attempts()
		for attempt := 1; attempt <= 2; attempt++ {
			delay, retry := schedule(attempt, 0)
			require.True(t, retry)
			assert.Zero(t, delay)
		}
		_, retry := schedule(3, 0)
		assert.False(t, retry)
	})

	t.Run("each request gets fresh backoff state", func(t *testing.T) {
		first := policy.Attempts()
		first(1, 0)
		first(2, 0)
		_, retry := first(3, 0)
		require.False(t, retry)

		second := policy.Attempts()
		_, retry = second(1, 0)
		assert.True(t, retry)
	})
}

func TestNoThrottling(t *testing.T) {
	_, retry := NoThrottling().Attempts()(1, 0)
	assert.False(t, retry)
}
