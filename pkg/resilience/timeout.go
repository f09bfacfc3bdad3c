package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. A timeout of
// zero or less runs fn unbounded. When the deadline passes first the error
// wraps both apperrors.ErrTimeout and context.DeadlineExceeded; fn keeps
// running in the background until it observes its context. A panic in fn is
// returned as an error wrapping apperrors.ErrInternal.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return runGuarded(ctx, name, fn)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runGuarded(timeoutCtx, name, fn)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, context.DeadlineExceeded)
	}
}

func runGuarded(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: panic: %v", name, apperrors.ErrInternal, r)
		}
	}()
	return fn(ctx)
}
