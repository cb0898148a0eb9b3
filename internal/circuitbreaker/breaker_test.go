package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testSettings() Settings {
	return Settings{
		MaxRequests:      5,
		Interval:         200 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

func TestBreakerStates(t *testing.T) {
	cb := New("test", testSettings(), zaptest.NewLogger(t))
	ctx := context.Background()

	if cb.State() != StateClosed {
		t.Fatalf("expected initial state closed, got %s", cb.State())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successes, got %s", cb.State())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return errors.New("boom") }); err == nil {
			t.Error("expected error")
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("expected success in half-open, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after half-open successes, got %s", cb.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	s := testSettings()
	s.FailureThreshold = 1
	cb := New("reopen", s, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	time.Sleep(150 * time.Millisecond)

	_ = cb.Execute(ctx, func() error { return errors.New("still broken") })
	if cb.State() != StateOpen {
		t.Errorf("expected breaker to reopen after half-open failure, got %s", cb.State())
	}
}

func TestBreakerHalfOpenMaxRequests(t *testing.T) {
	s := testSettings()
	s.FailureThreshold = 1
	s.MaxRequests = 1
	s.SuccessThreshold = 5
	cb := New("max", s, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	time.Sleep(150 * time.Millisecond)

	if err := cb.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("first half-open request should pass: %v", err)
	}
	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestBreakerCancelledContextNotCounted(t *testing.T) {
	s := testSettings()
	s.FailureThreshold = 1
	cb := New("cancel", s, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run with a cancelled context")
	}
	if cb.State() != StateClosed {
		t.Errorf("cancelled call must not trip the breaker, got %s", cb.State())
	}
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	s := testSettings()
	s.FailureThreshold = 1
	cb := New("panic", s, zaptest.NewLogger(t))

	func() {
		defer func() { _ = recover() }()
		_ = cb.Execute(context.Background(), func() error { panic("kaboom") })
	}()

	if cb.State() != StateOpen {
		t.Errorf("expected open after panic, got %s", cb.State())
	}
}

func TestSettingsForEnvOverride(t *testing.T) {
	t.Setenv("CB_LLM_FAILURE_THRESHOLD", "11")
	t.Setenv("CB_LLM_TIMEOUT", "3s")

	s := SettingsFor(DependencyLLM)
	if s.FailureThreshold != 11 {
		t.Errorf("expected failure threshold 11, got %d", s.FailureThreshold)
	}
	if s.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", s.Timeout)
	}
	if s.SuccessThreshold != builtIn[DependencyLLM].SuccessThreshold {
		t.Errorf("unset keys should keep built-in values")
	}

	if SettingsFor("unknown-dep") != DefaultSettings() {
		t.Errorf("unknown dependency should use defaults")
	}
}
