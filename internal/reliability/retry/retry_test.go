package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastConfig(), testLogger(), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != 42 || calls != 3 {
		t.Errorf("expected 42 after 3 calls, got %d after %d", result, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	_, err := Do(context.Background(), fastConfig(), testLogger(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryIfStopsNonRetryableErrors(t *testing.T) {
	retryable := errors.New("lock conflict")
	fatal := errors.New("bad input")

	cfg := fastConfig()
	cfg.RetryIf = func(err error) bool { return errors.Is(err, retryable) }

	calls := 0
	_, err := Do(context.Background(), cfg, testLogger(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if err != fatal {
		t.Fatalf("expected fatal error returned unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestRetryIfRetriesMatchingErrors(t *testing.T) {
	retryable := errors.New("lock conflict")

	cfg := fastConfig()
	cfg.RetryIf = func(err error) bool { return errors.Is(err, retryable) }

	calls := 0
	result, err := Do(context.Background(), cfg, testLogger(), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, retryable
		}
		return 7, nil
	})
	if err != nil || result != 7 {
		t.Fatalf("expected success on retry, got %d, %v", result, err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, fastConfig(), testLogger(), "op", func(ctx context.Context) (int, error) {
		t.Fatal("fn should not run with a cancelled context")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
