package audio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chaz8081/pendant/internal/codec"
	"github.com/chaz8081/pendant/internal/stream"
)

// Queue accepts encoded frames. stream.RingBuffer implements it.
type Queue interface {
	Enqueue(ctx context.Context, frame []byte) error
}

// Archive records raw blocks alongside the stream.
type Archive interface {
	WritePCM(samples []int16) error
}

// Producer encodes blocks and hands them to the queue. Blocks arrive on
// the audio thread through Push; Run does the encoding and the possibly
// blocking enqueue on its own goroutine.
type Producer struct {
	enc     codec.Encoder
	queue   Queue
	archive Archive
	blocks  chan []int16
	done    chan struct{}
	buf     []byte
}

// NewProducer returns a producer buffering up to backlog blocks between
// the audio thread and Run. archive may be nil.
func NewProducer(enc codec.Encoder, queue Queue, archive Archive, backlog int) *Producer {
	if backlog <= 0 {
		backlog = 16
	}
	return &Producer{
		enc:     enc,
		queue:   queue,
		archive: archive,
		blocks:  make(chan []int16, backlog),
		done:    make(chan struct{}),
	}
}

// Push hands a block to Run. It blocks while the backlog is full, which
// stalls capture rather than losing audio. Once Run has returned, blocks
// are discarded.
func (p *Producer) Push(block []int16) {
	select {
	case p.blocks <- block:
	case <-p.done:
	}
}

// Run encodes and enqueues blocks until ctx is cancelled. It must be
// called at most once.
func (p *Producer) Run(ctx context.Context) error {
	defer close(p.done)
	slog.Info("[AUDIO] Producer started", "codec", p.enc.Name())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block := <-p.blocks:
			if err := p.Produce(ctx, block); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Produce encodes one block and enqueues it. Oversized frames are logged
// and dropped.
func (p *Producer) Produce(ctx context.Context, block []int16) error {
	if p.archive != nil {
		if err := p.archive.WritePCM(block); err != nil {
			slog.Error("[AUDIO] archive write failed", "error", err)
		}
	}

	p.buf = p.enc.Encode(p.buf[:0], block)
	err := p.queue.Enqueue(ctx, p.buf)
	if errors.Is(err, stream.ErrTooLarge) {
		slog.Warn("[AUDIO] frame rejected", "bytes", len(p.buf), "samples", len(block))
	}
	return err
}
