// Package retry provides a bounded re-execution combinator for operations
// that may fail transiently.
//
// An operation is attempted up to MaxAttempts times with a fixed Delay
// between attempts. There is no pause before the first attempt and no
// backoff growth: every retry waits the same Delay.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Operation is a unit of work that can be retried. Each call must perform the
// work from scratch; no partial state is carried between attempts.
type Operation func(ctx context.Context) error

// Retrier re-executes an Operation on failure.
type Retrier struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between attempts. Negative values are treated as 0.
	Delay time.Duration

	// OnRetry, if set, is called after a failed attempt that will be retried,
	// before the delay. attempt is the 1-based number of the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier with the given attempt budget and delay.
func New(maxAttempts int, delay time.Duration) *Retrier {
	return &Retrier{
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}
}

// Option configures a Retrier built by Wrap.
type Option func(*Retrier)

// WithOnRetry sets the Retrier's OnRetry hook.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) {
		r.OnRetry = fn
	}
}

// Wrap returns an Operation that runs op with the retry contract: up to
// maxAttempts total attempts separated by delay. The wrapped operation returns
// nil on the first success, or the last attempt's error once attempts are
// exhausted.
func Wrap(op Operation, maxAttempts int, delay time.Duration, opts ...Option) Operation {
	r := New(maxAttempts, delay)
	for _, opt := range opts {
		opt(r)
	}
	return func(ctx context.Context) error {
		_, err := r.Do(ctx, op)
		return err
	}
}

// Do runs op until it succeeds or the attempt budget is spent.
// It returns the number of attempts made and the final error (nil on success).
// The returned error is the last attempt's error, unchanged, so callers can
// use errors.As on it. If ctx is cancelled while waiting between attempts,
// no further attempts are made and the last error is returned wrapped with
// the cancellation cause.
func (r *Retrier) Do(ctx context.Context, op Operation) (int, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := r.Delay
	if delay < 0 {
		delay = 0
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			break
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, &abortedError{err: lastErr, cause: err}
		}
	}
	return maxAttempts, lastErr
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abortedError is returned when retrying stopped because ctx was cancelled.
// It unwraps to both the last attempt error and the context error.
type abortedError struct {
	err   error
	cause error
}

func (e *abortedError) Error() string {
	return fmt.Sprintf("%v (retry aborted: %v)", e.err, e.cause)
}

func (e *abortedError) Unwrap() []error {
	return []error{e.err, e.cause}
}
