// Package stream moves encoded audio frames from the capture side to the
// link: a fixed-slot ring buffer filled by the producer and drained by a
// pusher that fragments each frame to the session's payload size.
package stream

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options configures the ring buffer and pusher. Zero fields take the
// values in their default tags.
type Options struct {
	Slots         int           `default:"32"`
	MaxFrameBytes int           `default:"320"`
	MinPayload    int           `default:"100"`
	InvalidIdle   time.Duration `default:"10ms"` // sleep after flushing for an invalid session
	EmptyIdle     time.Duration `default:"5ms"`  // sleep when the ring is empty
	SendRetry     time.Duration `default:"1ms"`  // delay between transient send retries
	EnqueueRetry  time.Duration `default:"1ms"`  // delay between enqueue attempts while full
}

// DefaultOptions returns Options with every field at its default.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// withDefaults fills zero fields of o.
func (o Options) withDefaults() Options {
	defaults.SetDefaults(&o)
	return o
}
