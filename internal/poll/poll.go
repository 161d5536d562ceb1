// Package poll implements fixed-interval polling with an overall deadline.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when the condition never held before the deadline.
var ErrTimeout = errors.New("poll timed out")

// Until calls check every interval until it returns nil or timeout elapses.
// The first check runs immediately. On timeout the last check error is
// wrapped together with ErrTimeout. Cancelling ctx stops polling and returns
// the context error.
func Until(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) error) error {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	op := func() error {
		err := check(deadline)
		// A check cut short by the deadline would mask the real failure.
		if err != nil && deadline.Err() == nil {
			lastErr = err
		}
		return err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), deadline)
	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		lastErr = err
	}
	return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, lastErr)
}

// Value polls like Until but returns the value produced by the first
// successful check.
func Value[T any](ctx context.Context, interval, timeout time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Until(ctx, interval, timeout, func(ctx context.Context) error {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Retry runs fn up to attempts times with a fixed delay, retrying only while
// retryable reports true for the returned error.
func Retry(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(max(attempts-1, 0))),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		slog.Debug("retrying after error", "attempt", attempt, "error", err)
		return err
	}, b)
}
