package stream

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRing(slots, maxFrame int) *RingBuffer {
	return NewRingBuffer(Options{Slots: slots, MaxFrameBytes: maxFrame, EnqueueRetry: time.Millisecond})
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 32, o.Slots)
	assert.Equal(t, 320, o.MaxFrameBytes)
	assert.Equal(t, 100, o.MinPayload)
	assert.Equal(t, 10*time.Millisecond, o.InvalidIdle)
	assert.Equal(t, time.Millisecond, o.SendRetry)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	r := testRing(4, 16)
	for _, n := range []int{0, 1, 15, 16} {
		frame := pattern(n, byte(n))
		require.NoError(t, r.TryEnqueue(frame))
		got, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, frame, got, "len %d", n)
	}
	_, ok := r.Dequeue()
	assert.False(t, ok)
}

func TestFIFOOrder(t *testing.T) {
	r := testRing(3, 8)
	for i := range 3 {
		require.NoError(t, r.TryEnqueue(pattern(i+1, byte(i*10))))
	}
	assert.Equal(t, 3, r.Len())
	for i := range 3 {
		got, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, pattern(i+1, byte(i*10)), got)
	}
}

func TestOversizeRejectedAndRingUnchanged(t *testing.T) {
	r := testRing(2, 8)
	require.NoError(t, r.TryEnqueue([]byte{1}))

	err := r.TryEnqueue(make([]byte, 9))
	assert.ErrorIs(t, err, ErrTooLarge)
	err = r.Enqueue(context.Background(), make([]byte, 9))
	assert.ErrorIs(t, err, ErrTooLarge)

	assert.Equal(t, 1, r.Len())
	got, _ := r.Dequeue()
	assert.Equal(t, []byte{1}, got)
}

func TestTryEnqueueFull(t *testing.T) {
	r := testRing(2, 4)
	require.NoError(t, r.TryEnqueue([]byte{1}))
	require.NoError(t, r.TryEnqueue([]byte{2}))
	assert.ErrorIs(t, r.TryEnqueue([]byte{3}), ErrFull)
	assert.Equal(t, 2, r.Len())
}

func TestEnqueueWaitsForSpace(t *testing.T) {
	r := testRing(1, 4)
	require.NoError(t, r.TryEnqueue([]byte{1}))

	done := make(chan error, 1)
	go func() { done <- r.Enqueue(context.Background(), []byte{2}) }()

	select {
	case err := <-done:
		t.Fatalf("Enqueue returned %v while ring was full", err)
	case <-time.After(20 * time.Millisecond):
	}

	got, ok := r.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not complete after space was freed")
	}
	got, _ = r.Dequeue()
	assert.Equal(t, []byte{2}, got)
}

func TestEnqueueCancelled(t *testing.T) {
	r := testRing(1, 4)
	require.NoError(t, r.TryEnqueue([]byte{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.Enqueue(ctx, []byte{2})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, r.Len())
}

func TestReset(t *testing.T) {
	r := testRing(4, 4)
	for i := range 3 {
		require.NoError(t, r.TryEnqueue([]byte{byte(i)}))
	}
	assert.Equal(t, 3, r.Reset())
	assert.Equal(t, 0, r.Len())
	_, ok := r.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Reset())

	// Usable after reset.
	require.NoError(t, r.TryEnqueue([]byte{9}))
	got, _ := r.Dequeue()
	assert.Equal(t, []byte{9}, got)
}

func TestWrapAround(t *testing.T) {
	r := testRing(3, 5)
	for i := range 20 {
		require.NoError(t, r.TryEnqueue(pattern(i%6, byte(i))))
		got, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, pattern(i%6, byte(i)), got)
	}
}

func TestConcurrentProducersNeverInterleave(t *testing.T) {
	r := testRing(4, 64)
	const producers, perProducer = 4, 200

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				frame := bytes.Repeat([]byte{byte(p)}, 1+(i%64))
				require.NoError(t, r.Enqueue(context.Background(), frame))
			}
		}()
	}

	received := 0
	deadline := time.After(10 * time.Second)
	for received < producers*perProducer {
		frame, ok := r.Dequeue()
		if !ok {
			select {
			case <-deadline:
				t.Fatalf("received %d of %d frames", received, producers*perProducer)
			default:
			}
			time.Sleep(100 * time.Microsecond)
			continue
		}
		require.NotEmpty(t, frame)
		for _, b := range frame {
			if b != frame[0] {
				t.Fatalf("frame mixes bytes from two producers: %v", frame)
			}
		}
		received++
	}
	wg.Wait()
}
