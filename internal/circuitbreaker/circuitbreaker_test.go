package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Call(ctx, func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after %d failures, want open", cb.State(), 3)
	}

	// While open, calls are rejected without running fn.
	ran := false
	err := cb.Call(ctx, func() error { ran = true; return nil })
	if err == nil {
		t.Error("Call() while open returned nil error")
	}
	if ran {
		t.Error("Call() while open executed fn")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	time.Sleep(15 * time.Millisecond)

	// First probe succeeds: half-open, still needs a second success to close.
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe Call() error: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v after first probe, want half_open", cb.State())
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("second probe Call() error: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v after second probe, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	time.Sleep(15 * time.Millisecond)
	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after half-open failure, want open", cb.State())
	}
}
