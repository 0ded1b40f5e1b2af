package button

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer latches the button level from raw edges. Edge may be called
// from any goroutine; Pressed is lock-free.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	lastEdge time.Time

	level   atomic.Bool
	ignored atomic.Uint64
}

// NewDebouncer returns a Debouncer that ignores edges arriving within
// window of the previous edge.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Edge records a raw edge. The edge time always becomes the reference
// for the next edge, even when this edge is ignored, so a burst of
// bounces is swallowed entirely.
func (d *Debouncer) Edge(pressed bool, at time.Time) {
	d.mu.Lock()
	prev := d.lastEdge
	d.lastEdge = at
	d.mu.Unlock()

	if !prev.IsZero() && at.Sub(prev) < d.window {
		d.ignored.Add(1)
		return
	}
	d.level.Store(pressed)
}

// Pressed returns the latched level.
func (d *Debouncer) Pressed() bool {
	return d.level.Load()
}

// Ignored returns how many edges were dropped as bounce.
func (d *Debouncer) Ignored() uint64 {
	return d.ignored.Load()
}
