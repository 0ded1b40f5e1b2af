// Package hotkey turns a global keyboard combo into button edges, so the
// gesture classifier can be driven from a desktop without GPIO hardware.
// KeyDown is a press edge and KeyUp a release edge.
package hotkey

import (
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// EdgeFunc receives each raw edge.
type EdgeFunc func(pressed bool, at time.Time)

// Listener manages a global hotkey and reports its edges.
type Listener struct {
	keys   []string
	onEdge EdgeFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	down bool
}

// NewListener creates a Listener for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "b"]).
func NewListener(keys []string, onEdge EdgeFunc) *Listener {
	return &Listener{
		keys:   keys,
		onEdge: onEdge,
		done:   make(chan struct{}),
	}
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		l.edge(true)
	})
	hook.Register(hook.KeyUp, l.keys, func(e hook.Event) {
		l.edge(false)
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
}

// edge forwards level changes only; key auto-repeat produces a stream of
// KeyDown events for a held combo.
func (l *Listener) edge(pressed bool) {
	l.mu.Lock()
	changed := l.down != pressed
	l.down = pressed
	l.mu.Unlock()
	if changed {
		l.onEdge(pressed, time.Now())
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
