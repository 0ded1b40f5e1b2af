package button

import (
	"context"
	"log/slog"

	"github.com/chaz8081/pendant/internal/metrics"
)

// Sampler steps the FSM with the debounced level once per tick. It is
// the FSM's only owner.
type Sampler struct {
	deb  *Debouncer
	fsm  *FSM
	sink func(Event)
}

// NewSampler returns a Sampler feeding events to sink.
func NewSampler(deb *Debouncer, fsm *FSM, sink func(Event)) *Sampler {
	return &Sampler{deb: deb, fsm: fsm, sink: sink}
}

// Tick samples once. Its signature fits periodic.Task.Run.
func (s *Sampler) Tick(context.Context) {
	before := s.fsm.State()
	s.fsm.Step(s.deb.Pressed(), func(e Event) {
		metrics.ButtonEvents.WithLabelValues(e.String()).Inc()
		slog.Info("[BUTTON] Event", "event", e.String())
		s.sink(e)
	})
	if after := s.fsm.State(); after != before {
		slog.Debug("[BUTTON] State", "from", before.String(), "to", after.String())
	}
}
