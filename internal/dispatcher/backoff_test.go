package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "github.com/postpilot-app/postpilot/configs"
)

func newBackoffDispatcher(jitter time.Duration) *Dispatcher {
	d := New(nil, nil, nil, nil, nil, config.Dispatcher{
		MaxAttempts:    3,
		BaseRetryDelay: 5 * time.Minute,
		MaxRetryDelay:  time.Hour,
		RetryJitter:    jitter,
	})
	// Deterministic upper-bound jitter.
	d.jitter = func(n int64) int64 { return n - 1 }
	return d
}

func TestRetryDelayDoublesThenCaps(t *testing.T) {
	d := newBackoffDispatcher(0)

	assert.Equal(t, 5*time.Minute, d.retryDelayForAttempt(1))
	assert.Equal(t, 10*time.Minute, d.retryDelayForAttempt(2))
	assert.Equal(t, 20*time.Minute, d.retryDelayForAttempt(3))
	assert.Equal(t, 40*time.Minute, d.retryDelayForAttempt(4))
	assert.Equal(t, time.Hour, d.retryDelayForAttempt(5))
	assert.Equal(t, time.Hour, d.retryDelayForAttempt(100))
}

func TestRetryDelayMonotone(t *testing.T) {
	d := newBackoffDispatcher(0)

	prev := time.Duration(0)
	for attempt := 0; attempt <= 30; attempt++ {
		delay := d.retryDelayForAttempt(attempt)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, time.Hour)
		prev = delay
	}
}

func TestRetryDelayJitterBounds(t *testing.T) {
	jitter := time.Minute
	d := newBackoffDispatcher(jitter)

	d.jitter = func(n int64) int64 { return 0 }
	assert.Equal(t, 5*time.Minute, d.retryDelayForAttempt(1))

	d.jitter = func(n int64) int64 { return n - 1 }
	assert.Equal(t, 5*time.Minute+jitter, d.retryDelayForAttempt(1))
}
