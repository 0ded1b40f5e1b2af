package ble

import (
	"context"
	"sync"
)

// Loopback is an in-process peripheral. A simulated central connects as
// soon as advertising starts, subscribes to audio and button
// notifications and hands every notification to Sink. It backs the
// "none" link backend and the streaming test tool.
type Loopback struct {
	Handle      string
	PayloadSize int
	// Sink receives a copy of every notification. It may be nil.
	Sink func(c CharID, data []byte)

	mu        sync.Mutex
	handlers  Handlers
	connected bool
}

// NewLoopback returns a loopback central with the given payload size.
func NewLoopback(payloadSize int, sink func(c CharID, data []byte)) *Loopback {
	return &Loopback{Handle: "loopback", PayloadSize: payloadSize, Sink: sink}
}

func (l *Loopback) Enable() error { return nil }

func (l *Loopback) Register(_ *Profile, h Handlers) error {
	l.mu.Lock()
	l.handlers = h
	l.mu.Unlock()
	return nil
}

// Advertise connects the simulated central and disconnects it when ctx
// is cancelled.
func (l *Loopback) Advertise(ctx context.Context, _ Advertisement) error {
	l.Connect()
	<-ctx.Done()
	l.Disconnect()
	return nil
}

// Connect attaches the central if it is not attached yet.
func (l *Loopback) Connect() {
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = true
	h := l.handlers
	l.mu.Unlock()

	if h.OnConnect != nil {
		h.OnConnect(l.Handle, l.PayloadSize)
	}
	if h.OnSubscribe != nil {
		h.OnSubscribe(CharAudioData, true)
		h.OnSubscribe(CharButton, true)
	}
}

// Disconnect detaches the central.
func (l *Loopback) Disconnect() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	h := l.handlers
	l.mu.Unlock()

	if h.OnDisconnect != nil {
		h.OnDisconnect(l.Handle)
	}
}

// Renegotiate reports a new payload size to the server.
func (l *Loopback) Renegotiate(size int) {
	l.mu.Lock()
	l.PayloadSize = size
	h := l.handlers
	l.mu.Unlock()
	if h.OnPayloadSize != nil {
		h.OnPayloadSize(size)
	}
}

// Write simulates a central write and returns the accepted length.
func (l *Loopback) Write(c CharID, data []byte) int {
	l.mu.Lock()
	h := l.handlers
	l.mu.Unlock()
	if h.OnWrite == nil {
		return 0
	}
	return h.OnWrite(c, data)
}

// Read simulates a central read.
func (l *Loopback) Read(c CharID) []byte {
	l.mu.Lock()
	h := l.handlers
	l.mu.Unlock()
	if h.OnRead == nil {
		return nil
	}
	return h.OnRead(c)
}

func (l *Loopback) Notify(c CharID, data []byte) error {
	l.mu.Lock()
	connected := l.connected
	sink := l.Sink
	l.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if sink != nil {
		sink(c, append([]byte(nil), data...))
	}
	return nil
}

func (l *Loopback) Close() error {
	l.Disconnect()
	return nil
}
