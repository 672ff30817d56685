package orchestrator

import (
	"context"
	"time"
)

// WithRetries calls fn up to attempts times. After a failed attempt other
// than the last, it sleeps backoff*(attempt+1) (linear) and tries again. The
// last attempt's error is returned unchanged. A configuration of N retries
// corresponds to attempts = N+1.
func WithRetries[T any](ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff * time.Duration(attempt+1)):
		}
	}
	return zero, lastErr
}
