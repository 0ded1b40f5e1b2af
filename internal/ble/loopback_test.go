package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/session"
	"github.com/chaz8081/pendant/internal/stream"
)

func TestLoopbackNotifyBeforeConnect(t *testing.T) {
	l := NewLoopback(100, nil)
	if err := l.Notify(CharAudioData, []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Notify() error = %v, want ErrNotConnected", err)
	}
}

func TestLoopbackLifecycle(t *testing.T) {
	sessions := session.NewManager()
	l := NewLoopback(64, nil)
	srv := NewServer(l, sessions, nil, ServerOptions{})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	l.Connect()
	s, ok := sessions.Current()
	if !ok || s.PayloadSize != 64 || !s.AudioNotify || !s.ButtonNotify {
		t.Fatalf("session after connect = %+v, %v", s, ok)
	}

	l.Renegotiate(185)
	if s, _ = sessions.Current(); s.PayloadSize != 185 {
		t.Errorf("PayloadSize = %d, want 185", s.PayloadSize)
	}

	if n := l.Write(CharDFUControl, []byte{0x02, 0x03, 0x04}); n != 3 {
		t.Errorf("Write() = %d, want 3", n)
	}
	if got := l.Read(CharAudioCodec); !bytes.Equal(got, []byte{0}) {
		t.Errorf("Read(codec) = %v, want [0]", got)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := sessions.Current(); ok {
		t.Error("session survived Close")
	}
}

func TestLoopbackStreamsFrames(t *testing.T) {
	var (
		mu     sync.Mutex
		frames [][]byte
		count  int
	)
	reasm := protocol.NewReassembler(func(f []byte) {
		frames = append(frames, append([]byte(nil), f...))
	})
	l := NewLoopback(100, func(c CharID, data []byte) {
		if c != CharAudioData {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		count++
		if err := reasm.Push(data); err != nil {
			t.Errorf("Push() error = %v", err)
		}
	})

	sessions := session.NewManager()
	srv := NewServer(l, sessions, nil, ServerOptions{})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	opts := stream.DefaultOptions()
	ring := stream.NewRingBuffer(opts)
	pusher := stream.NewPusher(ring, sessions, srv, opts)

	l.Connect()
	if !sessions.Valid(opts.MinPayload) {
		t.Fatal("session not valid after connect")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pusher.Run(ctx) }()

	want := make([][]byte, 3)
	for i := range want {
		want[i] = bytes.Repeat([]byte{byte(i + 1)}, 300)
		if err := ring.Enqueue(ctx, want[i]); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	// 300 bytes at 97 bytes per fragment is 4 fragments per frame.
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n == 12 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d fragments, want 12", n)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	reasm.Flush()
	if len(frames) != len(want) {
		t.Fatalf("reassembled %d frames, want %d", len(frames), len(want))
	}
	for i := range want {
		if !bytes.Equal(frames[i], want[i]) {
			t.Errorf("frame %d differs", i)
		}
	}
	if reasm.Gaps() != 0 {
		t.Errorf("Gaps() = %d, want 0", reasm.Gaps())
	}
}

func TestLoopbackAdvertiseConnectsUntilCancelled(t *testing.T) {
	sessions := session.NewManager()
	l := NewLoopback(185, nil)
	srv := NewServer(l, sessions, nil, ServerOptions{})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !sessions.Valid(100) {
		if time.Now().After(deadline) {
			t.Fatal("loopback never connected")
		}
		time.Sleep(time.Millisecond)
	}
	if !srv.Ready() {
		t.Error("Ready() = false with a connected peer")
	}

	cancel()
	<-done
	if _, ok := sessions.Current(); ok {
		t.Error("session survived cancel")
	}
}
