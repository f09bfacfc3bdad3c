package resilience

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "open", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, os.ErrNotExist) },
	}, func() error {
		calls++
		return os.ErrNotExist
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCircuitBreakerOpensAndReportsTransitions(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("store", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	fail := func() error { return errors.New("down") }
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute on open breaker = %v, want ErrCircuitOpen", err)
	}
	cb.Reset()
	if len(transitions) != 2 || transitions[0] != StateOpen || transitions[1] != StateClosed {
		t.Errorf("transitions = %v, want [open closed]", transitions)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestWithTimeoutWrapsErrTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, "walk", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if !apperrors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestWithTimeoutRecoversPanic(t *testing.T) {
	for _, timeout := range []time.Duration{0, time.Second} {
		err := WithTimeout(context.Background(), timeout, "boom", func(context.Context) error {
			panic("nil map")
		})
		if !apperrors.Is(err, apperrors.ErrInternal) {
			t.Errorf("timeout %v: err = %v, want ErrInternal", timeout, err)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second}.withDefaults()
	if d := backoff(10, cfg); d != 3*time.Second {
		t.Errorf("backoff(10) = %v, want cap 3s", d)
	}
	if d := backoff(1, cfg); d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("backoff(1) = %v, want 1s ± 10%%", d)
	}
}
