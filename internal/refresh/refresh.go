// Package refresh runs the periodic full recomputation that reconciles
// any drift between incremental verdict updates and ground truth.
package refresh

import (
	"context"
	"sync"
	"time"
)

// Ticker invokes a callback at a fixed interval and notifies registered
// listeners with the tick time. The incremental path is already correct
// on its own; the ticker exists so a missed edge case or a table built
// up elsewhere converges within one interval.
type Ticker struct {
	interval time.Duration
	fn       func(context.Context)

	mu        sync.Mutex
	listeners []func(time.Time)
	ticks     uint64
}

// NewTicker constructs a ticker. Run must be called to start it.
func NewTicker(interval time.Duration, fn func(context.Context)) *Ticker {
	return &Ticker{interval: interval, fn: fn}
}

// AddListener registers a callback invoked after every completed tick.
func (t *Ticker) AddListener(fn func(time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Ticks returns how many refreshes have completed.
func (t *Ticker) Ticks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Run fires the callback every interval until the context is cancelled.
// It blocks; callers run it in a goroutine.
func (t *Ticker) Run(ctx context.Context) {
	if t.interval <= 0 || t.fn == nil {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.fire(ctx, now)
		}
	}
}

// Fire runs one refresh immediately. Exposed for tests and for forcing a
// reconcile on demand.
func (t *Ticker) Fire(ctx context.Context) {
	t.fire(ctx, time.Now())
}

func (t *Ticker) fire(ctx context.Context, now time.Time) {
	t.fn(ctx)

	t.mu.Lock()
	t.ticks++
	listeners := make([]func(time.Time), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}
