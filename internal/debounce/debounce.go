// Package debounce provides the single coalescing primitive used across the
// pipeline to bound write rates (§4.J): session last-updated persistence,
// etc.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces repeated calls into a single tail execution Δ after
// the last call. Calling Call repeatedly within the window resets the
// timer; only the final call's fn runs.
type Debouncer struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Debouncer with the given coalescing interval.
func New(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Call schedules fn to run after the interval, canceling any pending call
// that hasn't fired yet.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
