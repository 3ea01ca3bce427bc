package poller

import (
	"context"
	"log/slog"
	"time"
)

// Retrier retries a failing remote operation forever with linearly growing
// delay. There is deliberately no attempt cap, no delay cap and no circuit
// breaker: every failure is treated as transient and waited out, and a
// permanent failure (revoked token, deleted account) shows up as an endless
// retry loop in the logs. The caller's goroutine blocks for the full sleep;
// that is the intended backpressure against the remote service.
type Retrier struct {
	Base      time.Duration // delay before the first retry
	Increment time.Duration // added to the delay after every failed attempt

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier with the given linear backoff schedule.
func NewRetrier(base, increment time.Duration) Retrier {
	return Retrier{Base: base, Increment: increment, sleep: ctxSleep}
}

// Do runs op until it succeeds or ctx is cancelled. Each failure is logged
// with its transient/permanent classification; both are retried, but the
// classification keeps the distinction observable so a breaker could be
// added here later without touching callers.
func Do[T any](ctx context.Context, r Retrier, op func(context.Context) (T, error)) (T, error) {
	sleep := r.sleep
	if sleep == nil {
		sleep = ctxSleep
	}

	delay := r.Base
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		recordFetchRetry()
		slog.Warn("fetch failed, will retry",
			"attempt", attempt,
			"delay", delay,
			"transient", isRetryable(err),
			"error", err,
		)

		if err := sleep(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
		delay += r.Increment
	}
}

// ctxSleep waits for d or context cancellation.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRetryable reports whether an error classifies itself as transient via
// the IsRetryable convention. Unknown errors default to transient.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}
