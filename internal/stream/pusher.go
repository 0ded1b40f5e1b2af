package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/metrics"
	"github.com/chaz8081/pendant/internal/session"
)

// Link delivers audio fragments to the peer. The fragment slice is only
// valid for the duration of the call. Implementations return an error
// satisfying IsTransient when their send queue is momentarily full.
type Link interface {
	NotifyAudio(fragment []byte) error
}

// Sessions is the pusher's view of the session manager.
type Sessions interface {
	Current() (session.Session, bool)
}

// StepResult reports what one pusher iteration did.
type StepResult int

const (
	// StepInvalid means no usable session; the ring was flushed.
	StepInvalid StepResult = iota
	// StepEmpty means the session was valid but no frame was queued.
	StepEmpty
	// StepSent means one frame was fragmented and handed to the link.
	StepSent
)

// Pusher drains a RingBuffer into a Link.
type Pusher struct {
	ring     *RingBuffer
	sessions Sessions
	link     Link
	opts     Options
	frag     protocol.Fragmenter
}

// NewPusher returns a Pusher. Zero fields in opts take their defaults.
func NewPusher(ring *RingBuffer, sessions Sessions, link Link, opts Options) *Pusher {
	return &Pusher{
		ring:     ring,
		sessions: sessions,
		link:     link,
		opts:     opts.withDefaults(),
	}
}

// Run loops until ctx is cancelled and returns ctx's error.
func (p *Pusher) Run(ctx context.Context) error {
	slog.Info("[STREAM] Pusher started",
		"slots", p.ring.Cap(),
		"max_frame", p.ring.MaxFrameBytes(),
		"min_payload", p.opts.MinPayload,
	)
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("[STREAM] Pusher stopped")
			return err
		}
		switch p.Step(ctx) {
		case StepInvalid:
			sleep(ctx, p.opts.InvalidIdle)
		case StepEmpty:
			sleep(ctx, p.opts.EmptyIdle)
		}
	}
}

// Step runs one iteration: flush on an invalid session, otherwise send
// at most one frame. It does not idle; Run does.
func (p *Pusher) Step(ctx context.Context) StepResult {
	s, ok := p.sessions.Current()
	if !ok || !s.Valid(p.opts.MinPayload) {
		if n := p.ring.Reset(); n > 0 {
			metrics.FramesFlushed.Add(float64(n))
			metrics.RingFlushes.Inc()
			slog.Debug("[STREAM] Flushed frames without a valid session", "frames", n, "connected", ok)
		}
		return StepInvalid
	}

	frame, ok := p.ring.Dequeue()
	if !ok {
		return StepEmpty
	}
	metrics.FramesDequeued.Inc()

	want := protocol.FragmentCount(len(frame), s.PayloadSize)
	n := p.frag.Split(frame, s.PayloadSize, func(fragment []byte) {
		p.emit(ctx, fragment)
	})
	if n < want {
		slog.Warn("[STREAM] Frame truncated, too many fragments", "fragments", n, "needed", want, "payload", s.PayloadSize)
	}
	return StepSent
}

// emit sends one fragment, retrying while the link reports backpressure.
// Any other error abandons the fragment.
func (p *Pusher) emit(ctx context.Context, fragment []byte) {
	for {
		err := p.link.NotifyAudio(fragment)
		if err == nil {
			metrics.FragmentsSent.Inc()
			return
		}
		if !IsTransient(err) {
			metrics.FragmentsDropped.Inc()
			slog.Warn("[STREAM] Dropping fragment", "error", err, "len", len(fragment))
			return
		}
		metrics.FragmentRetries.Inc()
		if !sleep(ctx, p.opts.SendRetry) {
			return
		}
	}
}

// sleep waits for d or until ctx ends, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
