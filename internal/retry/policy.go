// Package retry models the transport backoff behavior as an explicit,
// independently testable policy object.
package retry

import (
	"fmt"
	"math/rand"
	"time"
)

// JitterFunc returns a pseudo-random value in [0,1) used to spread retry
// delays. Injectable so tests can pin it.
type JitterFunc func() float64

// Policy encapsulates retry/backoff settings for transient failures.
// Delays double from Base up to Ceiling, with a ±JitterFraction spread.
// It is immutable after construction.
type Policy struct {
	Base           time.Duration // first retry delay
	Ceiling        time.Duration // cap for growth
	MaxAttempts    int           // total attempts including the first request
	JitterFraction float64       // e.g. 0.25 => delay varies by ±25%
	Jitter         JitterFunc    // defaults to math/rand
}

// DefaultPolicy returns the default transport policy (500ms base, 10s ceiling,
// 3 attempts, ±25% jitter).
func DefaultPolicy() Policy {
	return Policy{
		Base:           500 * time.Millisecond,
		Ceiling:        10 * time.Second,
		MaxAttempts:    3,
		JitterFraction: 0.25,
		Jitter:         rand.Float64,
	}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall
// back to defaults.
func NewPolicy(base, ceiling time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if base > 0 {
		p.Base = base
	}
	if ceiling > 0 {
		p.Ceiling = ceiling
	}
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if p.Base > p.Ceiling {
		p.Base = p.Ceiling
	}
	return p
}

// Delay returns the backoff delay before the given retry (1-based: the delay
// after the first failed attempt is Delay(1)). Non-positive attempts yield 0.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	d := p.Base
	// Doubling with shift overflow guard for large retry counts.
	if retryCount-1 < 32 {
		d = p.Base * (1 << (retryCount - 1))
	} else {
		d = p.Ceiling
	}
	if d > p.Ceiling || d <= 0 {
		d = p.Ceiling
	}
	if p.JitterFraction > 0 {
		jitter := p.Jitter
		if jitter == nil {
			jitter = rand.Float64
		}
		// Spread uniformly over [d*(1-f), d*(1+f)].
		spread := (jitter()*2 - 1) * p.JitterFraction
		d = time.Duration(float64(d) * (1 + spread))
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("base must be >0")
	}
	if p.Ceiling <= 0 {
		return fmt.Errorf("ceiling must be >0")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be >0")
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("jitter fraction must be in [0,1)")
	}
	return nil
}
