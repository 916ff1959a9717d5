package deepwiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCircuitBreakerClosedState(t *testing.T) {
	t.Run("allows requests in closed state", func(t *testing.T) {
		cb := NewCircuitBreaker(5, 2, 30*time.Second)

		for i := 0; i < 10; i++ {
			if err := cb.Allow(); err != nil {
				t.Errorf("Request %d should be allowed in CLOSED state, got error: %v", i, err)
			}
		}
	})

	t.Run("resets failure count on success", func(t *testing.T) {
		cb := NewCircuitBreaker(5, 2, 30*time.Second)

		cb.RecordFailure()
		cb.RecordFailure()
		_, failures, _ := cb.Metrics()
		if failures != 2 {
			t.Errorf("Expected 2 failures, got %d", failures)
		}

		cb.RecordSuccess()
		_, failures, _ = cb.Metrics()
		if failures != 0 {
			t.Errorf("Failure count should be reset to 0 after success, got %d", failures)
		}
	})

	t.Run("transitions to open after threshold failures", func(t *testing.T) {
		cb := NewCircuitBreaker(3, 2, 30*time.Second)

		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		if cb.State() != CircuitOpen {
			t.Errorf("Circuit should be OPEN after 3 failures, got %s", cb.State())
		}
	})
}

func TestCircuitBreakerOpenState(t *testing.T) {
	t.Run("blocks requests when open", func(t *testing.T) {
		cb := NewCircuitBreaker(3, 2, 30*time.Second)

		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		err := cb.Allow()
		if err == nil {
			t.Error("Allow() should return error when circuit is OPEN")
		}
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("Expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("transitions to half-open after timeout", func(t *testing.T) {
		cb := NewCircuitBreaker(3, 2, 100*time.Millisecond) // Short timeout for testing

		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
			t.Error("Should be blocked immediately after opening")
		}

		time.Sleep(150 * time.Millisecond)

		if err := cb.Allow(); err != nil {
			t.Errorf("Should allow request after timeout, got error: %v", err)
		}
		if cb.State() != CircuitHalfOpen {
			t.Errorf("Circuit should be HALF_OPEN after timeout, got %s", cb.State())
		}
	})
}

func TestCircuitBreakerHalfOpenState(t *testing.T) {
	tripAndProbe := func(t *testing.T) *CircuitBreaker {
		t.Helper()
		cb := NewCircuitBreaker(3, 2, 50*time.Millisecond)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		time.Sleep(60 * time.Millisecond)
		_ = cb.Allow() // Intentionally ignore error to transition state
		if cb.State() != CircuitHalfOpen {
			t.Fatal("Should be in HALF_OPEN state")
		}
		return cb
	}

	t.Run("closes after success threshold", func(t *testing.T) {
		cb := tripAndProbe(t)

		cb.RecordSuccess()
		if cb.State() != CircuitHalfOpen {
			t.Error("Should still be HALF_OPEN after 1 success")
		}

		cb.RecordSuccess()
		if cb.State() != CircuitClosed {
			t.Errorf("Should transition to CLOSED after 2 successes, got %s", cb.State())
		}

		_, failures, _ := cb.Metrics()
		if failures != 0 {
			t.Errorf("Failure count should be reset to 0, got %d", failures)
		}
	})

	t.Run("reopens on probe failure", func(t *testing.T) {
		cb := tripAndProbe(t)

		cb.RecordFailure()
		if cb.State() != CircuitOpen {
			t.Errorf("Any failure in HALF_OPEN should reopen, got %s", cb.State())
		}
	})
}

// fastRetryConfig keeps backoff well under test timeouts
func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func testClient(retry RetryConfig) *Client {
	var cb *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		cb = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}
	return &Client{retry: retry, circuitBreaker: cb}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	client := testClient(fastRetryConfig())

	attempts := 0
	err := client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryWithBackoff_RetriesTransientErrors(t *testing.T) {
	client := testClient(fastRetryConfig())

	attempts := 0
	err := client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if client.circuitBreaker.State() != CircuitClosed {
		t.Error("circuit should close again after the success")
	}
}

func TestRetryWithBackoff_NonRetriableStopsImmediately(t *testing.T) {
	client := testClient(fastRetryConfig())

	attempts := 0
	err := client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("401 unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for non-retriable error, got %d", attempts)
	}

	// Auth failures are the caller's problem, not the service's health.
	_, failures, _ := client.circuitBreaker.Metrics()
	if failures != 0 {
		t.Errorf("non-retriable errors should not count against the circuit, got %d", failures)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	cfg.FailureThreshold = 100 // Keep the circuit out of this test
	client := testClient(cfg)

	attempts := 0
	err := client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("connection reset by peer")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", attempts)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should mention attempt count, got: %v", err)
	}
}

func TestRetryWithBackoff_CircuitOpensMidSequence(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 5
	cfg.FailureThreshold = 2
	client := testClient(cfg)

	attempts := 0
	err := client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("500 internal server error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen once the threshold trips, got %v", err)
	}
	// Two failures trip the breaker; the third attempt is blocked before fn runs.
	if attempts != 2 {
		t.Errorf("expected 2 attempts before the circuit opened, got %d", attempts)
	}

	// A fresh call sequence fails fast without invoking fn at all.
	blocked := 0
	err = client.retryWithBackoff(context.Background(), "test-op", func(ctx context.Context) error {
		blocked++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected fail-fast ErrCircuitOpen, got %v", err)
	}
	if blocked != 0 {
		t.Errorf("fn should not run while the circuit is open, ran %d times", blocked)
	}
}

func TestRetryWithBackoff_ContextCanceledDuringBackoff(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Second // Long enough that cancellation wins the select
	client := testClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	err := client.retryWithBackoff(ctx, "test-op", func(ctx context.Context) error {
		cancel()
		return fmt.Errorf("timeout talking to service")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"rate limit text", errors.New("rate limit exceeded"), true},
		{"http 429", errors.New("HTTP 429 Too Many Requests"), true},
		{"http 500", errors.New("500 internal server error"), true},
		{"bad gateway", errors.New("received bad gateway from upstream"), true},
		{"service unavailable", errors.New("service unavailable"), true},
		{"gateway timeout", errors.New("504 gateway timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"generic timeout", errors.New("request timeout"), true},
		{"network flake", errors.New("network is unreachable"), true},
		{"http 400", errors.New("400 bad request"), false},
		{"http 401", errors.New("401 unauthorized"), false},
		{"http 403", errors.New("403 forbidden"), false},
		{"http 404", errors.New("404 not found"), false},
		{"unknown", errors.New("something inexplicable"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetriableError(tt.err); got != tt.want {
				t.Errorf("isRetriableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
