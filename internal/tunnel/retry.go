package tunnel

import (
	"context"
	"errors"
	"fmt"
)

// Attempt describes how to obtain and vet one candidate for Retry.
type Attempt[T any] struct {
	// Create produces a candidate. n counts from 1.
	Create func(ctx context.Context, n int) (T, error)
	// Validate accepts or rejects a created candidate.
	Validate func(ctx context.Context, candidate T) error
	// Discard releases a rejected candidate.
	Discard func(candidate T)
	// OnFailure observes each failed attempt.
	OnFailure func(n int, err error)
}

// Retry runs up to maxAttempts sequential attempts and returns the first
// candidate that is created and validated. Rejected candidates are
// discarded before the next attempt starts. Exhaustion returns
// ErrTunnelUnavailable wrapping the last failure; a cancelled ctx returns
// its error immediately.
func Retry[T any](ctx context.Context, maxAttempts int, a Attempt[T]) (T, error) {
	var zero T
	if maxAttempts < 1 {
		return zero, errors.New("maxAttempts must be at least 1")
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		candidate, err := a.Create(ctx, n)
		if err == nil && a.Validate != nil {
			if err = a.Validate(ctx, candidate); err != nil && a.Discard != nil {
				a.Discard(candidate)
			}
		}
		if err == nil {
			return candidate, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		if a.OnFailure != nil {
			a.OnFailure(n, err)
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrTunnelUnavailable, maxAttempts, lastErr)
}
