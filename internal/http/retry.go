package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrorType classifies a failed remote call for the retry strategy
type ErrorType int

const (
	ErrorTypeSuccess   ErrorType = iota
	ErrorTypeNetwork             // Timeouts, resets, refused connections
	ErrorTypeRetryable           // Throttling and 5xx responses
	ErrorTypeFatal               // Auth failures, bad requests, anything unknown
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RetryConfig holds retry parameters for ExecuteWithRetry
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is invoked before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the retry parameters used for deletion notifications
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// ClassifyError determines the error type for retry strategy.
// Matching is on the error text, which covers both S3 and Azure error codes.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	errStr := strings.ToLower(err.Error())

	for _, s := range []string{"403", "unauthorized", "authenticationfailed", "authorization failure", "accessdenied"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeFatal
		}
	}
	for _, s := range []string{"tls handshake timeout", "connection reset", "i/o timeout", "eof", "connection refused", "broken pipe", "timeout"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeNetwork
		}
	}
	for _, s := range []string{"slowdown", "throttl", "serverbusy", "server busy", "serviceunavailable", "internalerror", "429", "500", "502", "503", "504"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeRetryable
		}
	}
	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, runs out
// of attempts or ctx is done. Backoff sleeps return early on cancellation.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}
		timer := time.NewTimer(CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}
