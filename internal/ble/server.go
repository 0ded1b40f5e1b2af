package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/session"
)

// ServerOptions configures the GATT server.
type ServerOptions struct {
	Name           string        // advertised local name
	DefaultPayload int           // payload size when the stack does not report one
	CodecID        byte          // value of the audio codec characteristic
	Device         DeviceInfo    // device information service
	AdvertiseMax   int           // max advertising restart backoff in seconds
	AdvertiseRetry time.Duration // first advertising restart delay
}

// DefaultServerOptions returns sensible defaults.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Name:           "Friend",
		DefaultPayload: 23 - 3,
		AdvertiseMax:   30,
		AdvertiseRetry: time.Second,
	}
}

// ControlHandler consumes DFU control point writes.
type ControlHandler interface {
	HandleWrite(payload []byte) int
}

// Server binds a Peripheral to the session manager. It is the audio link
// of the pusher, the emitter of the button outbox, the notifier of the
// DFU controller and the publisher of the battery reporter.
type Server struct {
	periph   Peripheral
	sessions *session.Manager
	control  ControlHandler
	profile  *Profile
	opts     ServerOptions

	mu      sync.Mutex
	battery byte
	button  []byte

	registered  atomic.Bool
	advertising atomic.Bool
}

// NewServer creates a server. control may be nil, in which case control
// point writes are accepted and ignored.
func NewServer(periph Peripheral, sessions *session.Manager, control ControlHandler, opts ServerOptions) *Server {
	def := DefaultServerOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.DefaultPayload <= 0 {
		opts.DefaultPayload = def.DefaultPayload
	}
	if opts.AdvertiseMax <= 0 {
		opts.AdvertiseMax = def.AdvertiseMax
	}
	if opts.AdvertiseRetry <= 0 {
		opts.AdvertiseRetry = def.AdvertiseRetry
	}
	return &Server{
		periph:   periph,
		sessions: sessions,
		control:  control,
		profile:  PendantProfile(opts.CodecID, opts.Device),
		opts:     opts,
		button:   protocol.EncodeButtonEvent(0),
	}
}

// Profile returns the registered profile.
func (s *Server) Profile() *Profile {
	return s.profile
}

// Advertisement returns what the server broadcasts: the name and the
// audio service, with device information and DFU in the scan response.
func (s *Server) Advertisement() Advertisement {
	return Advertisement{
		LocalName:         s.opts.Name,
		ServiceUUIDs:      []string{AudioServiceUUID},
		ScanResponseUUIDs: []string{DeviceInfoUUID, DFUServiceUUID},
	}
}

// Start powers on the adapter and registers the profile.
func (s *Server) Start() error {
	if err := s.profile.Validate(); err != nil {
		return err
	}
	if err := s.periph.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	if err := s.periph.Register(s.profile, s.handlers()); err != nil {
		return fmt.Errorf("ble: register profile: %w", err)
	}
	s.registered.Store(true)
	slog.Info("[BLE] profile registered", "services", s.profile.Len(), "name", s.opts.Name)
	return nil
}

// Run advertises until ctx is cancelled, restarting advertising with
// exponential backoff when the stack reports a failure.
func (s *Server) Run(ctx context.Context) error {
	adv := s.Advertisement()
	for attempt := 0; ; {
		s.advertising.Store(true)
		slog.Info("[BLE] advertising", "name", adv.LocalName)
		err := s.periph.Advertise(ctx, adv)
		s.advertising.Store(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// The stack stopped advertising on its own; restart promptly.
			attempt = 0
		}

		delay := s.backoff(attempt)
		attempt++
		slog.Warn("[BLE] advertising failed", "error", err, "attempt", attempt, "retry_in", delay)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Ready reports whether the profile is registered and advertising or
// serving a peer.
func (s *Server) Ready() bool {
	if !s.registered.Load() {
		return false
	}
	if _, ok := s.sessions.Current(); ok {
		return true
	}
	return s.advertising.Load()
}

// Close releases the peripheral.
func (s *Server) Close() error {
	s.registered.Store(false)
	return s.periph.Close()
}

// NotifyAudio sends one audio fragment.
func (s *Server) NotifyAudio(fragment []byte) error {
	if _, ok := s.sessions.Current(); !ok {
		return ErrNotConnected
	}
	return s.periph.Notify(CharAudioData, fragment)
}

// EmitButton records the event as the button characteristic value and
// notifies the peer.
func (s *Server) EmitButton(e protocol.ButtonEvent) error {
	rec := protocol.EncodeButtonEvent(e)
	s.mu.Lock()
	s.button = rec
	s.mu.Unlock()

	if _, ok := s.sessions.Current(); !ok {
		return ErrNotConnected
	}
	return s.periph.Notify(CharButton, rec)
}

// NotifyDFU sends a notification on the DFU control point.
func (s *Server) NotifyDFU(payload []byte) error {
	if _, ok := s.sessions.Current(); !ok {
		return ErrNotConnected
	}
	return s.periph.Notify(CharDFUControl, payload)
}

// SetBatteryLevel updates the battery level characteristic. The value is
// kept for reads when no peer is listening.
func (s *Server) SetBatteryLevel(percent uint8) error {
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	s.battery = percent
	s.mu.Unlock()

	err := s.periph.Notify(CharBattery, []byte{percent})
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrNotSubscribed) {
		return nil
	}
	return err
}

func (s *Server) handlers() Handlers {
	return Handlers{
		OnConnect:     s.onConnect,
		OnDisconnect:  s.onDisconnect,
		OnPayloadSize: s.sessions.OnPayloadSizeChanged,
		OnSubscribe:   s.onSubscribe,
		OnWrite:       s.onWrite,
		OnRead:        s.onRead,
	}
}

func (s *Server) onConnect(handle string, payloadSize int) {
	if payloadSize <= 0 {
		payloadSize = s.opts.DefaultPayload
		slog.Warn("[BLE] link did not report its MTU, assuming default payload size",
			"handle", handle, "payload", payloadSize)
	}
	sess := s.sessions.OnEstablished(session.LinkInfo{Handle: handle, PayloadSize: payloadSize})
	slog.Info("[BLE] peer connected", "handle", handle, "payload", payloadSize, "session", sess.ID)
}

func (s *Server) onDisconnect(handle string) {
	s.sessions.OnTerminated(handle)
	slog.Info("[BLE] peer disconnected", "handle", handle)
}

func (s *Server) onSubscribe(c CharID, enabled bool) {
	switch c {
	case CharAudioData:
		s.sessions.OnSubscriptionChanged(session.AudioData, enabled)
	case CharButton:
		s.sessions.OnSubscriptionChanged(session.ButtonEvent, enabled)
	default:
		slog.Debug("[BLE] subscription", "characteristic", c, "enabled", enabled)
	}
}

func (s *Server) onWrite(c CharID, data []byte) int {
	if c != CharDFUControl {
		slog.Debug("[BLE] write to read-only characteristic", "characteristic", c, "len", len(data))
		return 0
	}
	if s.control == nil {
		return len(data)
	}
	return s.control.HandleWrite(data)
}

func (s *Server) onRead(c CharID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c {
	case CharAudioData:
		return nil
	case CharBattery:
		return []byte{s.battery}
	case CharButton:
		return append([]byte(nil), s.button...)
	}
	if spec, ok := s.profile.Lookup(c); ok {
		return append([]byte(nil), spec.Value...)
	}
	return nil
}

func (s *Server) backoff(attempt int) time.Duration {
	return backoffDelay(attempt, s.opts.AdvertiseRetry, s.opts.AdvertiseMax)
}

// backoffDelay returns the restart delay for attempt n, doubling from
// base and capped at maxSeconds.
func backoffDelay(attempt int, base time.Duration, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 32 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
