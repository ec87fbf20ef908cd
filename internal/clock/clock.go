// Package clock drives a callback on a fixed wall-clock period.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc is invoked once per period. ctx is cancelled when the clock stops.
type TickFunc func(ctx context.Context, now time.Time)

// Clock runs a TickFunc every interval on a single goroutine, so ticks never
// overlap. A tick that overruns the interval causes the missed ticks to be
// dropped rather than queued.
//
// States: Stopped → Running → Stopped. Start and Stop may be repeated.
type Clock struct {
	interval time.Duration
	fn       TickFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped clock. Pass nil logger to use slog.Default().
func New(interval time.Duration, fn TickFunc, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{interval: interval, fn: fn, logger: logger}
}

// Start begins ticking. Starting a running clock is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)

	c.logger.Info("simulation clock started", "interval", c.interval.String())
}

// Stop cancels the pending tick and waits for an in-flight tick to finish.
// No tick fires after Stop returns. Stopping a stopped clock is a no-op.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil

	c.logger.Info("simulation clock stopped")
}

// Running reports whether the clock is started.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Clock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// select picks randomly when both are ready.
			if ctx.Err() != nil {
				return
			}
			c.run(ctx, now)
		}
	}
}

func (c *Clock) run(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("simulation tick panicked", "panic", r)
		}
	}()
	c.fn(ctx, now)
}
