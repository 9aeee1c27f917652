// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"time"
)

// Sleep blocks the caller for given timeout duration. Returns early if the
// input context is canceled.
func Sleep(ctx context.Context, d time.Duration) {
	sctx, scancel := context.WithTimeout(ctx, d)
	<-sctx.Done()
	scancel()
}

// Retry runs the input function till it succeeds or till the input context is
// canceled. Returns nil if the input function is successful or last non-nil
// error from the function after the context has expired.
func Retry(ctx context.Context, interval time.Duration, f func() error) (err error) {
	for err = f(); err != nil && context.Cause(ctx) == nil; err = f() {
		Sleep(ctx, interval)
	}
	return
}

// RetryTimeout is similar to Retry, but gives up after the timeout.
func RetryTimeout(ctx context.Context, interval, timeout time.Duration, f func() error) error {
	sctx, scancel := context.WithTimeout(ctx, timeout)
	defer scancel()
	return Retry(sctx, interval, f)
}

// Backoff returns the wait duration before the given (zero based) retry
// attempt. Duration doubles with every attempt and is capped at limit.
func Backoff(initial, limit time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// RetryBackoff runs the input function at most maxAttempts times with
// exponential back-off between attempts. Retries stop early when retryable
// returns false for the error or when the context is canceled. Returns the
// last error.
func RetryBackoff(ctx context.Context, initial time.Duration, maxAttempts int, retryable func(error) bool, f func() error) (err error) {
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			Sleep(ctx, Backoff(initial, 16*initial, i-1))
			if ctx.Err() != nil {
				return err
			}
		}
		if err = f(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return err
}
