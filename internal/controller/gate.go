// Package controller throttles stream creation against the metadata service
// using an overload circuit breaker.
package controller

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rzbill/strata/internal/breaker"
	"github.com/rzbill/strata/internal/stream"
	"github.com/rzbill/strata/pkg/future"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// ErrThrottled is matched by every *ThrottleError.
var ErrThrottled = errors.New("controller: stream creation throttled")

// ThrottleError tells the caller to retry after RetryAfter.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%v, retry after %s", ErrThrottled, e.RetryAfter)
}

func (e *ThrottleError) Is(target error) bool { return target == ErrThrottled }

// Options configures a Gate.
type Options struct {
	// MaxInflight is the number of concurrent creations that trips the breaker.
	MaxInflight int
	// LowWatermark is the in-flight level at or below which a request counts
	// as a recovery probe.
	LowWatermark int
	// ThrottleTime is reported to throttled callers.
	ThrottleTime time.Duration
	Logger       logpkg.Logger
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{MaxInflight: 64, LowWatermark: 8, ThrottleTime: time.Second}
}

// Gate decorates a stream.Client, rejecting creations while the breaker
// reports overload. Opens of existing streams pass through.
type Gate struct {
	next    stream.Client
	breaker *breaker.OverloadCircuitBreaker
	opts    Options
	logger  logpkg.Logger

	inflight  atomic.Int64
	throttled atomic.Int64
	created   atomic.Int64
}

var _ stream.Client = (*Gate)(nil)

// NewGate wraps next. Zero limits fall back to DefaultOptions.
func NewGate(next stream.Client, b *breaker.OverloadCircuitBreaker, opts Options) *Gate {
	def := DefaultOptions()
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = def.MaxInflight
	}
	if opts.LowWatermark < 0 || opts.LowWatermark >= opts.MaxInflight {
		opts.LowWatermark = opts.MaxInflight / 8
	}
	if opts.ThrottleTime <= 0 {
		opts.ThrottleTime = def.ThrottleTime
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Gate{next: next, breaker: b, opts: opts, logger: logger.With(logpkg.Component("controller-gate"))}
}

func (g *Gate) throttle(reason string) *future.Future[stream.Stream] {
	g.throttled.Add(1)
	g.logger.Debug("stream creation throttled", logpkg.Str("reason", reason), logpkg.Int64("inflight", g.inflight.Load()))
	return future.Failed[stream.Stream](&ThrottleError{RetryAfter: g.opts.ThrottleTime})
}

// CreateAndOpenStream forwards to the wrapped client unless the breaker is
// open or the in-flight limit is reached.
func (g *Gate) CreateAndOpenStream(opts stream.CreateOptions) *future.Future[stream.Stream] {
	if g.inflight.Load() <= int64(g.opts.LowWatermark) {
		g.breaker.Success()
	}
	if g.breaker.IsOverload() {
		return g.throttle("breaker open")
	}
	if n := g.inflight.Add(1); n > int64(g.opts.MaxInflight) {
		g.inflight.Add(-1)
		g.breaker.Overload()
		g.logger.Warn("controller overloaded", logpkg.Int64("inflight", n-1), logpkg.Int("max_inflight", g.opts.MaxInflight))
		return g.throttle("max in-flight")
	}

	created := g.next.CreateAndOpenStream(opts)
	created.OnComplete(func(_ stream.Stream, err error) {
		g.inflight.Add(-1)
		switch {
		case err == nil:
			g.created.Add(1)
			g.breaker.Success()
		case errors.Is(err, ErrThrottled):
			g.breaker.Overload()
		}
	})
	return created
}

// OpenStream is not gated.
func (g *Gate) OpenStream(streamID int64, opts stream.OpenOptions) *future.Future[stream.Stream] {
	return g.next.OpenStream(streamID, opts)
}

// Status is a point-in-time view of the gate.
type Status struct {
	State        string    `json:"state"`
	Overloaded   bool      `json:"overloaded"`
	LastOverload time.Time `json:"last_overload,omitempty"`
	Window       string    `json:"window"`
	Inflight     int64     `json:"inflight"`
	MaxInflight  int       `json:"max_inflight"`
	Throttled    int64     `json:"throttled"`
	Created      int64     `json:"created"`
}

// Status reports breaker state and counters.
func (g *Gate) Status() Status {
	snap := g.breaker.Snapshot()
	return Status{
		State:        snap.State.String(),
		Overloaded:   snap.Overloaded,
		LastOverload: snap.LastOverload,
		Window:       snap.Window.String(),
		Inflight:     g.inflight.Load(),
		MaxInflight:  g.opts.MaxInflight,
		Throttled:    g.throttled.Load(),
		Created:      g.created.Load(),
	}
}

// Breaker returns the breaker consulted by the gate.
func (g *Gate) Breaker() *breaker.OverloadCircuitBreaker { return g.breaker }
