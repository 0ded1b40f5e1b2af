package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/chaz8081/pendant/internal/metrics"
)

const lengthFieldSize = 2

// RingBuffer is a FIFO of fixed-size slots, each holding a 2-byte
// little-endian length followed by up to MaxFrameBytes of frame data.
// Slots are written and read whole; the byte ring underneath never holds a
// partial slot. It is safe for one producer and one consumer, or more.
type RingBuffer struct {
	mu       sync.Mutex
	buf      *ringbuffer.RingBuffer
	slots    int
	maxFrame int
	slotSize int
	retry    time.Duration
	scratch  []byte
}

// NewRingBuffer returns an empty ring of opts.Slots slots.
func NewRingBuffer(opts Options) *RingBuffer {
	opts = opts.withDefaults()
	slotSize := lengthFieldSize + opts.MaxFrameBytes
	return &RingBuffer{
		buf:      ringbuffer.New(opts.Slots * slotSize),
		slots:    opts.Slots,
		maxFrame: opts.MaxFrameBytes,
		slotSize: slotSize,
		retry:    opts.EnqueueRetry,
		scratch:  make([]byte, slotSize),
	}
}

// Enqueue appends frame, waiting while the ring is full. It fails only
// with ErrTooLarge, or with ctx's error if ctx ends while waiting.
func (r *RingBuffer) Enqueue(ctx context.Context, frame []byte) error {
	for {
		err := r.TryEnqueue(frame)
		if !errors.Is(err, ErrFull) {
			return err
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryEnqueue appends frame if a slot is free and returns ErrFull otherwise.
func (r *RingBuffer) TryEnqueue(frame []byte) error {
	if len(frame) > r.maxFrame {
		metrics.FramesRejected.Inc()
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(frame), r.maxFrame)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.Free() < r.slotSize {
		return ErrFull
	}
	binary.LittleEndian.PutUint16(r.scratch, uint16(len(frame)))
	n := copy(r.scratch[lengthFieldSize:], frame)
	clear(r.scratch[lengthFieldSize+n:])
	if _, err := r.buf.Write(r.scratch); err != nil {
		// Free space was checked under the lock; a short write means the
		// ring is corrupt.
		r.buf.Reset()
		return fmt.Errorf("stream: writing slot: %w", err)
	}
	metrics.FramesEnqueued.Inc()
	metrics.RingDepth.Set(float64(r.buf.Length() / r.slotSize))
	return nil
}

// Dequeue removes the oldest frame. It returns false if the ring is empty.
func (r *RingBuffer) Dequeue() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.Length() < r.slotSize {
		return nil, false
	}
	if _, err := r.buf.Read(r.scratch); err != nil {
		r.buf.Reset()
		return nil, false
	}
	n := int(binary.LittleEndian.Uint16(r.scratch))
	if n > r.maxFrame {
		n = r.maxFrame
	}
	frame := make([]byte, n)
	copy(frame, r.scratch[lengthFieldSize:])
	metrics.RingDepth.Set(float64(r.buf.Length() / r.slotSize))
	return frame, true
}

// Reset discards every queued frame and returns how many were dropped.
func (r *RingBuffer) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.buf.Length() / r.slotSize
	if n > 0 {
		r.buf.Reset()
		metrics.RingDepth.Set(0)
	}
	return n
}

// Len returns the number of queued frames.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Length() / r.slotSize
}

// Cap returns the number of slots.
func (r *RingBuffer) Cap() int { return r.slots }

// MaxFrameBytes returns the largest frame Enqueue accepts.
func (r *RingBuffer) MaxFrameBytes() int { return r.maxFrame }
