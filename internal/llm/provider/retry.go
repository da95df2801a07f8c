package provider

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

const (
	defaultMaxRetries   = 3
	retryBaseDelay      = 500 * time.Millisecond
	retryMaxDelay       = 8 * time.Second
	retryJitterFactor   = 0.3
	providerCallTimeout = 120 * time.Second
)

// retryPolicy controls how transient backend failures are retried.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{maxAttempts: defaultMaxRetries, baseDelay: retryBaseDelay, maxDelay: retryMaxDelay}
}

// do runs call until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. Errors must already be wrapped as *ProviderError
// for retryability to be detected.
func (p retryPolicy) do(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		err = call(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

// backoff returns the delay before the given attempt: base * 2^(attempt-1), capped, ±30% jitter.
func (p retryPolicy) backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 31 {
		shift = 31
	}
	delay := time.Duration(1<<uint(shift)) * p.baseDelay
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	jitter := time.Duration(float64(delay) * retryJitterFactor * (cryptoRandFloat64()*2 - 1))
	return delay + jitter
}

// cryptoRandFloat64 returns a random float64 in [0.0, 1.0)
func cryptoRandFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}
