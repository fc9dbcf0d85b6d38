// Package resilience provides the bounded retry policy applied to
// translation calls.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	// DefaultMaxAttempts is the translation retry budget.
	DefaultMaxAttempts = 3

	// maxBackoff caps the exponential backoff between attempts.
	maxBackoff = 10 * time.Second
)

// TransientError wraps a connectivity or timeout failure that is worth
// retrying. Application-level rejections (well-formed non-2xx responses)
// must not be wrapped and therefore fail immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable connectivity failure.
// Besides explicit TransientError wrapping, network timeouts and context
// deadline expiry count as transient; a caller-cancelled context does not.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Sleeper abstracts backoff waiting so tests can observe requested delays
// without actually sleeping.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Retry runs fn up to maxAttempts times, waiting min(2^attempt, 10)s between
// attempts (attempt starting at 1). Only transient errors are retried; any
// other error is returned immediately. On exhaustion the last error is
// surfaced, not a composite.
func Retry(ctx context.Context, name string, maxAttempts int, fn func() error) error {
	return RetryWithSleeper(ctx, name, maxAttempts, fn, defaultSleep)
}

// RetryWithSleeper is Retry with an injectable backoff wait, used by tests
// that assert the policy without sleeping for real.
func RetryWithSleeper(ctx context.Context, name string, maxAttempts int, fn func() error, sleep Sleeper) error {
	if sleep == nil {
		sleep = defaultSleep
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := slog.Default().With("operation", name)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := Backoff(attempt)
		logger.Warn("transient failure, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "wait", delay, "error", lastErr)
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted during backoff: %w", err)
		}
	}
	return lastErr
}

// Backoff returns the wait after the given attempt: min(2^attempt, 10)s.
func Backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
