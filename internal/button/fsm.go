// Package button classifies a single push button into press, release,
// single, double and long tap gestures.
//
// Edges from the hardware (or a desktop hotkey) go through a Debouncer
// that latches the current level. A Sampler reads that level on a fixed
// tick and steps the FSM, whose events are queued in an Outbox and
// delivered to the peer.
package button

import (
	"math"

	"github.com/mcuadros/go-defaults"

	"github.com/chaz8081/pendant/internal/ble/protocol"
)

// Event is a classified button event; its value is the wire code.
type Event = protocol.ButtonEvent

// State is the gesture classifier state.
type State int

const (
	StateIdle State = iota
	StateOnePress
	StateTwoPress
	StateGrace
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOnePress:
		return "one_press"
	case StateTwoPress:
		return "two_press"
	case StateGrace:
		return "grace"
	default:
		return "unknown"
	}
}

// Thresholds are tick counts. A counter must exceed its threshold for
// the transition to fire.
type Thresholds struct {
	// Released ticks after the first press before the second-press window opens.
	SinglePressTicks uint32 `default:"2"`
	// Held ticks in the first press that make a long tap.
	LongPressTicks uint32 `default:"50"`
	// Held ticks in the second press that make a long tap.
	SecondLongPressTicks uint32 `default:"10"`
	// Released ticks in the second-press window that make a single tap.
	SingleTapTicks uint32 `default:"10"`
	// Released ticks spent in grace before returning to idle.
	GraceTicks uint32 `default:"10"`
}

// DefaultThresholds returns the thresholds tuned for a 40ms tick.
func DefaultThresholds() Thresholds {
	var t Thresholds
	defaults.SetDefaults(&t)
	return t
}

// FSM is the gesture state machine. It is owned by a single goroutine
// and is not safe for concurrent use.
type FSM struct {
	th            Thresholds
	state         State
	ticksReleased uint32
	ticksPressed  uint32
}

// NewFSM returns an FSM in StateIdle. Zero thresholds take their defaults.
func NewFSM(th Thresholds) *FSM {
	defaults.SetDefaults(&th)
	return &FSM{th: th}
}

// State returns the current state.
func (f *FSM) State() State { return f.state }

// Step advances the machine by one tick with the sampled level, calling
// emit for each event produced, in order.
func (f *FSM) Step(pressed bool, emit func(Event)) {
	switch f.state {
	case StateIdle:
		if pressed {
			emit(protocol.ButtonPress)
			f.transition(StateOnePress)
		}

	case StateOnePress:
		if !pressed {
			if f.ticksReleased == 0 {
				emit(protocol.ButtonRelease)
			}
			inc(&f.ticksReleased)
			if f.ticksReleased > f.th.SinglePressTicks {
				f.transition(StateTwoPress)
			}
			return
		}
		inc(&f.ticksPressed)
		if f.ticksPressed > f.th.LongPressTicks {
			emit(protocol.ButtonLongTap)
			f.transition(StateGrace)
		}

	case StateTwoPress:
		if !pressed {
			switch {
			case f.ticksPressed > 0:
				emit(protocol.ButtonRelease)
				emit(protocol.ButtonDoubleTap)
				f.transition(StateGrace)
			case f.ticksReleased > f.th.SingleTapTicks:
				emit(protocol.ButtonSingleTap)
				f.transition(StateGrace)
			default:
				inc(&f.ticksReleased)
			}
			return
		}
		if f.ticksPressed == 0 {
			emit(protocol.ButtonPress)
		}
		inc(&f.ticksPressed)
		if f.ticksPressed > f.th.SecondLongPressTicks {
			emit(protocol.ButtonLongTap)
			f.transition(StateGrace)
		}

	case StateGrace:
		if pressed {
			inc(&f.ticksPressed)
			return
		}
		if f.ticksReleased == 0 && f.ticksPressed > 0 {
			emit(protocol.ButtonRelease)
		}
		inc(&f.ticksReleased)
		if f.ticksReleased > f.th.GraceTicks {
			f.transition(StateIdle)
		}
	}
}

func (f *FSM) transition(s State) {
	f.state = s
	f.ticksReleased = 0
	f.ticksPressed = 0
}

// inc increments a saturating counter.
func inc(c *uint32) {
	if *c < math.MaxUint32 {
		*c++
	}
}
