package button

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/chaz8081/pendant/internal/metrics"
	"github.com/chaz8081/pendant/internal/session"
)

// Emitter delivers one button event to the peer.
type Emitter interface {
	EmitButton(e Event) error
}

// Sessions is the outbox's view of the session manager.
type Sessions interface {
	Current() (session.Session, bool)
}

// Outbox decouples the sampler from the link. When the drain falls
// behind, the oldest queued events are overwritten.
type Outbox struct {
	ring     mpmc.RichOverlappedRingBuffer[Event]
	wake     chan struct{}
	emitter  Emitter
	sessions Sessions
}

// NewOutbox returns an Outbox holding up to size events.
func NewOutbox(size int, emitter Emitter, sessions Sessions) (*Outbox, error) {
	if size <= 0 {
		return nil, fmt.Errorf("button: outbox size must be > 0, got %d", size)
	}
	return &Outbox{
		ring:     mpmc.NewOverlappedRingBuffer[Event](uint32(size)),
		wake:     make(chan struct{}, 1),
		emitter:  emitter,
		sessions: sessions,
	}, nil
}

// Push queues an event without blocking.
func (o *Outbox) Push(e Event) {
	overwrites, err := o.ring.EnqueueM(e)
	if err != nil {
		slog.Error("[BUTTON] Outbox enqueue failed", "event", e.String(), "error", err)
		return
	}
	if overwrites > 0 {
		metrics.ButtonEventsDropped.Add(float64(overwrites))
		slog.Debug("[BUTTON] Outbox overflow, oldest events overwritten", "count", overwrites)
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
			o.Drain()
		}
	}
}

// Drain delivers every queued event. Events are dropped when no session
// has button notifications enabled.
func (o *Outbox) Drain() {
	for !o.ring.IsEmpty() {
		e, err := o.ring.Dequeue()
		if err != nil {
			return
		}
		s, ok := o.sessions.Current()
		if !ok || !s.ButtonNotify {
			metrics.ButtonEventsDropped.Inc()
			slog.Debug("[BUTTON] No subscriber, dropping event", "event", e.String())
			continue
		}
		if err := o.emitter.EmitButton(e); err != nil {
			metrics.ButtonEventsDropped.Inc()
			slog.Warn("[BUTTON] Failed to notify event", "event", e.String(), "error", err)
		}
	}
}
