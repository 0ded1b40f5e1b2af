// Command test-stream is a manual end-to-end test of the audio path. It
// captures the microphone, streams it through the ring buffer, pusher
// and GATT server to an in-process central, reassembles the fragments
// and writes what the central received to a WAV file.
//
// Usage:
//
//	go run ./cmd/test-stream [--duration 5s] [--codec pcm16|pcm8] [--payload 185] [--out stream.wav]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/chaz8081/pendant/internal/audio"
	"github.com/chaz8081/pendant/internal/ble"
	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/codec"
	"github.com/chaz8081/pendant/internal/logging"
	"github.com/chaz8081/pendant/internal/session"
	"github.com/chaz8081/pendant/internal/storage"
	"github.com/chaz8081/pendant/internal/stream"
)

func main() {
	duration := flag.Duration("duration", 5*time.Second, "how long to capture")
	codecName := flag.String("codec", "pcm16", "codec: pcm16 or pcm8")
	payload := flag.Int("payload", 185, "simulated notification payload size")
	out := flag.String("out", "stream.wav", "output WAV file")
	rate := flag.Uint("rate", 16000, "sample rate in Hz")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	if _, err := logging.Install("text", level, os.Stderr); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := run(*duration, *codecName, *payload, *out, uint32(*rate)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(duration time.Duration, codecName string, payload int, out string, rate uint32) error {
	enc, err := codec.New(codecName)
	if err != nil {
		return err
	}

	archive, err := storage.NewWAVArchive(filepath.Dir(out), int(rate), 1, 0)
	if err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		received  int
		frames    int
		decodeErr error
	)
	reasm := protocol.NewReassembler(func(frame []byte) {
		frames++
		pcm, err := codec.Decode(enc.ID(), frame)
		if err != nil {
			decodeErr = err
			return
		}
		if err := archive.WritePCM(pcm); err != nil {
			decodeErr = err
		}
	})
	central := ble.NewLoopback(payload, func(c ble.CharID, data []byte) {
		if c != ble.CharAudioData {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		received++
		if err := reasm.Push(data); err != nil {
			slog.Warn("bad fragment", "error", err)
		}
	})

	sessions := session.NewManager()
	srv := ble.NewServer(central, sessions, nil, ble.ServerOptions{CodecID: enc.ID(), DefaultPayload: payload})
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	opts := stream.DefaultOptions()
	ring := stream.NewRingBuffer(opts)
	pusher := stream.NewPusher(ring, sessions, srv, opts)
	producer := audio.NewProducer(enc, ring, nil, 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	go func() { _ = srv.Run(ctx) }()
	go func() { _ = pusher.Run(ctx) }()
	go func() { _ = producer.Run(ctx) }()

	capture, err := audio.NewCapture(rate, 1)
	if err != nil {
		return err
	}
	defer capture.Close()

	framer := audio.NewFramer(opts.MaxFrameBytes/enc.FrameBytes(1), producer.Push)
	if err := capture.Start(framer.Write); err != nil {
		return err
	}

	fmt.Printf("Streaming %s for %s at payload %d...\n", enc.Name(), duration, payload)
	<-ctx.Done()
	capture.Stop()

	mu.Lock()
	reasm.Flush()
	fmt.Printf("Fragments: %d  Frames: %d  Gaps: %d\n", received, frames, reasm.Gaps())
	err = archive.Close()
	mu.Unlock()
	if err != nil {
		return err
	}
	if decodeErr != nil {
		return decodeErr
	}
	if files := archive.Files(); len(files) > 0 {
		if err := os.Rename(files[0], out); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
	}
	return nil
}
