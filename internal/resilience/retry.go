package resilience

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns the wait before retry n (1-based): 2, 4, 8, ... seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<attempt) * time.Second
}

// Retry runs fn up to maxAttempts times, sleeping an exponential backoff
// between attempts. A nil isRetryable retries every error. The context is
// honoured while sleeping.
func Retry[T any](ctx context.Context, maxAttempts int, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
