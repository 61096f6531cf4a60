package dispatcher

import "time"

// maxBackoffShift bounds the exponent so the doubling can never overflow a
// Duration before the cap applies.
const maxBackoffShift = 20

// retryDelayForAttempt computes the wait before retry number attempt:
// min(base * 2^(attempt-1), max) plus a uniform jitter in [0, RetryJitter].
// Exponential growth bounds retry storms against a flaky provider, jitter
// spreads out retries after a provider-wide outage, and the cap keeps
// recovery timely after a long outage.
func (d *Dispatcher) retryDelayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}

	delay := d.cfg.BaseRetryDelay << (attempt - 1)
	if delay <= 0 || delay > d.cfg.MaxRetryDelay {
		delay = d.cfg.MaxRetryDelay
	}

	if d.cfg.RetryJitter > 0 {
		delay += time.Duration(d.jitter(int64(d.cfg.RetryJitter) + 1))
	}
	return delay
}
