package memory

import (
	"context"
	"sync"
	"time"

	"communityxp/engine"
)

// Counter is an in-process fixed-window RateCounter.
type Counter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]window
}

// window is the current count for one key and the length it was counted against.
type window struct {
	start time.Time
	size  time.Duration
	count int64
}

// NewCounter returns a Counter using the wall clock.
func NewCounter() *Counter { return NewCounterWithClock(time.Now) }

// NewCounterWithClock returns a Counter reading time from now.
func NewCounterWithClock(now func() time.Time) *Counter {
	return &Counter{now: now, windows: map[string]window{}}
}

func (c *Counter) Incr(_ context.Context, key string, d time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.Sub(w.start) >= d {
		w = window{start: now}
	}
	w.size = d
	w.count++
	c.windows[key] = w
	c.gcLocked(now)
	return w.count, nil
}

// gcLocked drops expired windows once the map grows large.
func (c *Counter) gcLocked(now time.Time) {
	if len(c.windows) < 1024 {
		return
	}
	for k, w := range c.windows {
		if now.Sub(w.start) >= w.size {
			delete(c.windows, k)
		}
	}
}

var _ engine.RateCounter = (*Counter)(nil)
