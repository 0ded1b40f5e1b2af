package stream

import (
	"errors"
	"syscall"
)

var (
	// ErrTooLarge is returned by Enqueue for frames longer than a slot.
	ErrTooLarge = errors.New("stream: frame exceeds max frame size")
	// ErrFull is returned by TryEnqueue when no slot is free.
	ErrFull = errors.New("stream: ring buffer full")
	// ErrLinkBusy is returned by a Link whose send queue is momentarily
	// full. The pusher retries it indefinitely.
	ErrLinkBusy = errors.New("stream: link busy")
)

// IsTransient reports whether a send error is the link's backpressure
// signal rather than a failure.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrLinkBusy),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.ENOBUFS),
		errors.Is(err, syscall.ENOMEM):
		return true
	}
	return false
}
