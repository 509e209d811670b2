// Package timectrl drives the engine's synchronous step loop from wall
// time. The engine itself is tick-driven and passive; this package is
// the one place that decides how often Step is invoked.
package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orbitalfoundry/debris-simulator/core"
)

// Stepper is the slice of the engine the runner needs. Satisfied by
// *core.Engine.
type Stepper interface {
	Step(ctx context.Context, elapsedSeconds float64) (core.TickResult, error)
}

// Runner invokes Step once per wall-clock tick, passing the measured
// elapsed time so the engine can apply its time multiplier and
// sub-step subdivision.
type Runner struct {
	mu       sync.RWMutex
	engine   Stepper
	interval time.Duration

	lastResult core.TickResult
	ticks      int

	listeners []func(core.TickResult)
}

// NewRunner constructs a runner stepping engine every interval.
func NewRunner(engine Stepper, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Runner{engine: engine, interval: interval}
}

// AddListener registers a callback invoked after every successful tick.
func (r *Runner) AddListener(fn func(core.TickResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Ticks returns how many steps have completed.
func (r *Runner) Ticks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ticks
}

// LastResult returns the most recent tick's result.
func (r *Runner) LastResult() core.TickResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastResult
}

// Start runs the loop in a separate goroutine until ctx is cancelled.
// It returns a channel that is closed when the loop exits. Step errors
// other than cancellation abort the loop: a failed step means the
// engine needs reinitialization, not a retry.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				elapsed := now.Sub(last).Seconds()
				last = now

				result, err := r.engine.Step(ctx, elapsed)
				if errors.Is(err, core.ErrConcurrencyViolation) {
					// Another caller (e.g. the control API) is mid-step;
					// skip this tick rather than kill the loop.
					continue
				}
				if err != nil {
					return
				}

				r.mu.Lock()
				r.lastResult = result
				r.ticks++
				listeners := r.listeners
				r.mu.Unlock()

				for _, fn := range listeners {
					fn(result)
				}
			}
		}
	}()
	return done
}
