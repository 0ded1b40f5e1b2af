package button

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/session"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingEmitter) EmitButton(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type staticSessions struct {
	s  session.Session
	ok bool
}

func (s staticSessions) Current() (session.Session, bool) { return s.s, s.ok }

func TestNewOutboxRejectsZeroSize(t *testing.T) {
	_, err := NewOutbox(0, &recordingEmitter{}, staticSessions{})
	assert.Error(t, err)
}

func TestOutboxDeliversInOrderWhenSubscribed(t *testing.T) {
	em := &recordingEmitter{}
	o, err := NewOutbox(16, em, staticSessions{s: session.Session{ButtonNotify: true}, ok: true})
	require.NoError(t, err)

	o.Push(protocol.ButtonPress)
	o.Push(protocol.ButtonRelease)
	o.Push(protocol.ButtonSingleTap)
	o.Drain()

	assert.Equal(t, []Event{protocol.ButtonPress, protocol.ButtonRelease, protocol.ButtonSingleTap}, em.got())
}

func TestOutboxDropsWithoutSubscriber(t *testing.T) {
	tests := []struct {
		name string
		ss   staticSessions
	}{
		{"no session", staticSessions{}},
		{"not subscribed", staticSessions{s: session.Session{AudioNotify: true}, ok: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := &recordingEmitter{}
			o, err := NewOutbox(4, em, tt.ss)
			require.NoError(t, err)
			o.Push(protocol.ButtonPress)
			o.Drain()
			assert.Empty(t, em.got())
		})
	}
}

func TestOutboxEmitErrorDoesNotStopDrain(t *testing.T) {
	em := &recordingEmitter{err: errors.New("link down")}
	o, err := NewOutbox(4, em, staticSessions{s: session.Session{ButtonNotify: true}, ok: true})
	require.NoError(t, err)
	o.Push(protocol.ButtonPress)
	o.Push(protocol.ButtonRelease)
	o.Drain()
	assert.Empty(t, em.got())
}

func TestOutboxRunWakesOnPush(t *testing.T) {
	em := &recordingEmitter{}
	o, err := NewOutbox(8, em, staticSessions{s: session.Session{ButtonNotify: true}, ok: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	o.Push(protocol.ButtonDoubleTap)
	require.Eventually(t, func() bool { return len(em.got()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, protocol.ButtonDoubleTap, em.got()[0])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSamplerFeedsSink(t *testing.T) {
	deb := NewDebouncer(0)
	var got []Event
	s := NewSampler(deb, NewFSM(Thresholds{}), func(e Event) { got = append(got, e) })

	deb.Edge(true, time.Unix(1, 0))
	s.Tick(context.Background())
	deb.Edge(false, time.Unix(2, 0))
	s.Tick(context.Background())

	assert.Equal(t, []Event{protocol.ButtonPress, protocol.ButtonRelease}, got)
}
