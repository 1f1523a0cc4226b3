package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that overran its limit. It matches
// context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: exceeded time limit of %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Call runs fn with a context cancelled after limit and returns its result.
// Call returns once the limit passes even if fn ignores its context; the
// late result is discarded. A limit <= 0 runs fn directly.
func Call[T any](ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if limit <= 0 {
		return fn(ctx)
	}
	limitCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(limitCtx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && limitCtx.Err() != nil {
			return zero, &TimeoutError{Op: op, Limit: limit}
		}
		return r.val, r.err
	case <-limitCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		return zero, &TimeoutError{Op: op, Limit: limit}
	}
}

// WithTimeout is Call for operations without a result, such as ledger
// migrations.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, limit, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
