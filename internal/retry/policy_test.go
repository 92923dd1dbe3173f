package retry

import (
	"testing"
	"time"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Base != 500*time.Millisecond {
		t.Fatalf("expected base 500ms got %v", p.Base)
	}
	if p.Ceiling != 10*time.Second {
		t.Fatalf("expected ceiling 10s got %v", p.Ceiling)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts got %d", p.MaxAttempts)
	}
	if p.JitterFraction != 0.25 {
		t.Fatalf("expected jitter 0.25 got %v", p.JitterFraction)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when base > ceiling.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(5*time.Second, 2*time.Second, 7)
	if p.Base != 2*time.Second {
		t.Fatalf("expected clamped base 2s got %v", p.Base)
	}
	if p.Ceiling != 2*time.Second {
		t.Fatalf("expected ceiling 2s got %v", p.Ceiling)
	}
	if p.MaxAttempts != 7 {
		t.Fatalf("expected 7 attempts got %d", p.MaxAttempts)
	}
}

// TestDelayDoubling checks exponential growth and ceiling with jitter pinned to zero spread.
func TestDelayDoubling(t *testing.T) {
	p := NewPolicy(100*time.Millisecond, 350*time.Millisecond, 5)
	p.Jitter = func() float64 { return 0.5 } // midpoint => no spread
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond}, // 400 capped
		{4, 350 * time.Millisecond},
		{40, 350 * time.Millisecond}, // shift overflow guard
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Fatalf("attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

// TestDelayJitterBounds ensures jittered delays stay inside the spread.
func TestDelayJitterBounds(t *testing.T) {
	p := NewPolicy(time.Second, time.Minute, 3)
	lo := p.Delay(1)
	p.Jitter = func() float64 { return 0 } // -25%
	if got := p.Delay(1); got != 750*time.Millisecond {
		t.Fatalf("lower bound expected 750ms got %v", got)
	}
	p.Jitter = func() float64 { return 1 } // would be +25%, rand never returns 1 but bound holds
	if got := p.Delay(1); got != 1250*time.Millisecond {
		t.Fatalf("upper bound expected 1.25s got %v", got)
	}
	if lo < 750*time.Millisecond || lo > 1250*time.Millisecond {
		t.Fatalf("random jitter out of bounds: %v", lo)
	}
}

// TestDelayEdgeCases ensures non-positive attempts yield zero and don't panic.
func TestDelayEdgeCases(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("attempt -1 expected 0 got %v", d)
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	good := DefaultPolicy()
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	bad := []Policy{
		{Base: 0, Ceiling: time.Second, MaxAttempts: 1},
		{Base: time.Second, Ceiling: 0, MaxAttempts: 1},
		{Base: time.Second, Ceiling: time.Second, MaxAttempts: 0},
		{Base: time.Second, Ceiling: time.Second, MaxAttempts: 1, JitterFraction: 1.5},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
