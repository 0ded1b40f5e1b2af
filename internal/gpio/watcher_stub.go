//go:build !linux

package gpio

import (
	"context"
	"errors"
)

// ErrUnsupported is returned on platforms without sysfs GPIO.
var ErrUnsupported = errors.New("gpio: sysfs gpio is only available on linux")

// Watcher is unavailable on this platform.
type Watcher struct{}

// Open always fails on this platform.
func Open(pin Pin, onEdge EdgeFunc) (*Watcher, error) { return nil, ErrUnsupported }

// Run always fails on this platform.
func (w *Watcher) Run(ctx context.Context) error { return ErrUnsupported }

// Close is a no-op.
func (w *Watcher) Close() error { return nil }
