// Package breaker implements a time-windowed overload circuit breaker that
// protects a shared control-plane resource from bursts of requests.
//
// The breaker only records signals. Callers report Overload when the
// protected resource shows distress and Success when a request went through;
// IsOverload tells them whether to throttle. Recovery is gated on elapsed
// time: a Success is honored only once the half-open window has passed since
// the most recent Overload. IsOverload never expires on its own.
package breaker

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// HalfOpenWindow is the default minimum time between the last overload signal
// and an honored recovery.
const HalfOpenWindow = time.Minute

// State is the observable breaker state.
type State int

const (
	// StateClosed means the resource is not overloaded.
	StateClosed State = iota
	// StateOpen means the resource is overloaded and recovery is not yet allowed.
	StateOpen
	// StateHalfOpen means the resource is still reported overloaded but the
	// next Success will close the breaker.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Option configures an OverloadCircuitBreaker.
type Option func(*OverloadCircuitBreaker)

// WithWindow overrides the half-open window. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(b *OverloadCircuitBreaker) {
		if d > 0 {
			b.window = d
		}
	}
}

// OverloadCircuitBreaker is safe for concurrent use. overloaded and
// lastOverload are read and written together under mu.
type OverloadCircuitBreaker struct {
	clock  clock.Clock
	window time.Duration

	mu           sync.Mutex
	overloaded   bool
	lastOverload time.Time
}

// New returns a closed breaker. A nil clock uses the wall clock.
func New(clk clock.Clock, opts ...Option) *OverloadCircuitBreaker {
	if clk == nil {
		clk = clock.New()
	}
	b := &OverloadCircuitBreaker{clock: clk, window: HalfOpenWindow}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Window returns the configured half-open window.
func (b *OverloadCircuitBreaker) Window() time.Duration { return b.window }

// Overload opens the breaker, or restarts the window if already open.
func (b *OverloadCircuitBreaker) Overload() {
	now := b.clock.Now()
	b.mu.Lock()
	b.overloaded = true
	b.lastOverload = now
	b.mu.Unlock()
}

// Success closes the breaker if the window has elapsed since the last
// Overload. Before that it has no effect.
func (b *OverloadCircuitBreaker) Success() {
	now := b.clock.Now()
	b.mu.Lock()
	if b.overloaded && now.Sub(b.lastOverload) >= b.window {
		b.overloaded = false
	}
	b.mu.Unlock()
}

// IsOverload reports the stored flag without looking at the clock.
func (b *OverloadCircuitBreaker) IsOverload() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overloaded
}

// State reports Open or HalfOpen while overloaded, depending on whether the
// window has elapsed.
func (b *OverloadCircuitBreaker) State() State { return b.Snapshot().State }

// Snapshot is a consistent view of the breaker.
type Snapshot struct {
	State        State
	Overloaded   bool
	LastOverload time.Time
	Window       time.Duration
}

// Snapshot returns state and timestamp read under one lock.
func (b *OverloadCircuitBreaker) Snapshot() Snapshot {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{Overloaded: b.overloaded, LastOverload: b.lastOverload, Window: b.window}
	switch {
	case !b.overloaded:
		s.State = StateClosed
	case now.Sub(b.lastOverload) >= b.window:
		s.State = StateHalfOpen
	default:
		s.State = StateOpen
	}
	return s
}
