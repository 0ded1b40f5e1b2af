// Package session tracks the single live peer connection: its negotiated
// payload size and which notifications the peer has enabled.
//
// Readers always get an immutable snapshot; the link layer's lifecycle
// callbacks are the only writers.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/pendant/internal/metrics"
)

// Characteristic identifies a notifying characteristic whose
// subscription state is tracked per session.
type Characteristic int

const (
	AudioData Characteristic = iota
	ButtonEvent
)

func (c Characteristic) String() string {
	switch c {
	case AudioData:
		return "audio"
	case ButtonEvent:
		return "button"
	default:
		return "unknown"
	}
}

// LinkInfo is what the link layer reports when a peer connects.
type LinkInfo struct {
	Handle      string // opaque connection handle, usually the peer address
	PayloadSize int    // initial notification payload size in bytes
}

// Session is a snapshot of the connected peer. It is never mutated after
// it has been published.
type Session struct {
	ID            uuid.UUID
	Handle        string
	PayloadSize   int
	AudioNotify   bool
	ButtonNotify  bool
	EstablishedAt time.Time
}

// Valid reports whether audio can be streamed to this session.
func (s Session) Valid(minPayload int) bool {
	return s.PayloadSize >= minPayload && s.AudioNotify
}

// Starter is started every time a session is established. Start must be
// idempotent.
type Starter interface {
	Start()
}

// Observer is told about every published change. connected is false
// after termination, in which case s is the session that just ended.
type Observer func(s Session, connected bool)

// Manager owns the current session.
type Manager struct {
	mu        sync.Mutex // serializes writers
	current   atomic.Pointer[Session]
	starters  []Starter
	observers []Observer
	now       func() time.Time
}

// NewManager returns a Manager with no session. starters are started on
// every establishment.
func NewManager(starters ...Starter) *Manager {
	return &Manager{starters: starters, now: time.Now}
}

// Subscribe registers an observer. Observers run synchronously on the
// link layer's callback and must not call back into the Manager's
// mutation hooks.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Current returns the live session, if any. Callers must not cache the
// result across blocking operations.
func (m *Manager) Current() (Session, bool) {
	p := m.current.Load()
	if p == nil {
		return Session{}, false
	}
	return *p, true
}

// Valid reports whether a session exists, its payload size is at least
// minPayload and audio notifications are enabled.
func (m *Manager) Valid(minPayload int) bool {
	s, ok := m.Current()
	return ok && s.Valid(minPayload)
}

// OnEstablished creates a new session, replacing any existing one, and
// starts the registered starters.
func (m *Manager) OnEstablished(info LinkInfo) Session {
	m.mu.Lock()
	if old := m.current.Load(); old != nil {
		slog.Warn("[SESSION] Replacing live session", "old", old.ID, "handle", old.Handle)
	}
	s := &Session{
		ID:            uuid.New(),
		Handle:        info.Handle,
		PayloadSize:   info.PayloadSize,
		EstablishedAt: m.now(),
	}
	m.publish(s)
	starters := m.starters
	m.mu.Unlock()

	metrics.Sessions.Inc()
	slog.Info("[SESSION] Established", "session", s.ID, "handle", s.Handle, "payload", s.PayloadSize)

	for _, st := range starters {
		st.Start()
	}
	return *s
}

// OnTerminated clears the session of the link identified by handle. A
// late termination for a link that has already been replaced is ignored.
// Periodic tasks keep running.
func (m *Manager) OnTerminated(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.current.Load()
	if old == nil {
		return
	}
	if old.Handle != handle {
		slog.Debug("[SESSION] Ignoring termination of stale link", "handle", handle, "live", old.Handle)
		return
	}
	m.current.Store(nil)
	metrics.SessionConnected.Set(0)
	metrics.PayloadSize.Set(0)
	slog.Info("[SESSION] Terminated", "session", old.ID, "duration", m.now().Sub(old.EstablishedAt).Round(time.Millisecond))
	for _, o := range m.observers {
		o(*old, false)
	}
}

// OnPayloadSizeChanged updates the payload size of the live session.
func (m *Manager) OnPayloadSizeChanged(size int) {
	m.update(func(s *Session) bool {
		if s.PayloadSize == size {
			return false
		}
		slog.Info("[SESSION] Payload size changed", "session", s.ID, "from", s.PayloadSize, "to", size)
		s.PayloadSize = size
		return true
	})
}

// OnSubscriptionChanged records whether the peer enabled notifications
// on c.
func (m *Manager) OnSubscriptionChanged(c Characteristic, enabled bool) {
	m.update(func(s *Session) bool {
		var flag *bool
		switch c {
		case AudioData:
			flag = &s.AudioNotify
		case ButtonEvent:
			flag = &s.ButtonNotify
		default:
			return false
		}
		if *flag == enabled {
			return false
		}
		*flag = enabled
		slog.Info("[SESSION] Subscription changed", "session", s.ID, "characteristic", c.String(), "enabled", enabled)
		return true
	})
}

// update applies fn to a copy of the live session and publishes the copy
// if fn reports a change. It is a no-op without a session.
func (m *Manager) update(fn func(s *Session) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	if cur == nil {
		return
	}
	next := *cur
	if !fn(&next) {
		return
	}
	m.publish(&next)
}

// publish must be called with mu held.
func (m *Manager) publish(s *Session) {
	m.current.Store(s)
	metrics.SessionConnected.Set(1)
	metrics.PayloadSize.Set(float64(s.PayloadSize))
	for _, o := range m.observers {
		o(*s, true)
	}
}
