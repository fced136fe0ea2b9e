package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExecuteWithRetry_Success(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecuteWithRetry_FatalError(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return fmt.Errorf("AccessDenied: 403")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry on fatal), got %d", calls)
	}
}

func TestExecuteWithRetry_RetriesThenSucceeds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	var retried []ErrorType
	cfg.OnRetry = func(attempt int, err error, errorType ErrorType) {
		retried = append(retried, errorType)
	}

	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("connection reset by peer")
		}
		if calls == 2 {
			return fmt.Errorf("503 SlowDown")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if len(retried) != 2 || retried[0] != ErrorTypeNetwork || retried[1] != ErrorTypeRetryable {
		t.Errorf("retries = %v", retried)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("i/o timeout")
	})
	if err == nil || calls != 2 {
		t.Errorf("err=%v calls=%d, want error after 2 calls", err, calls)
	}
}

func TestExecuteWithRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 5 * time.Second, MaxDelay: 30 * time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ExecuteWithRetry(ctx, cfg, func() error {
		return fmt.Errorf("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected quick return after cancel, took %v", elapsed)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{context.Canceled, ErrorTypeFatal},
		{fmt.Errorf("AuthenticationFailed"), ErrorTypeFatal},
		{fmt.Errorf("dial tcp: connection refused"), ErrorTypeNetwork},
		{fmt.Errorf("ServerBusy"), ErrorTypeRetryable},
		{fmt.Errorf("status 502"), ErrorTypeRetryable},
		{fmt.Errorf("something odd"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0, time.Second, time.Minute); got != 0 {
		t.Errorf("attempt 0 backoff = %v, want 0", got)
	}
	for i := 0; i < 50; i++ {
		if got := CalculateBackoff(10, time.Second, 2*time.Second); got >= 2*time.Second {
			t.Fatalf("backoff %v exceeds cap", got)
		}
	}
}
