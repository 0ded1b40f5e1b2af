//go:build linux

package gpio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const pollTimeoutMs = 100

// Watcher reports edges on a sysfs GPIO pin.
type Watcher struct {
	pin    Pin
	onEdge EdgeFunc
	f      *os.File
}

// Open configures pin and opens its value file.
func Open(pin Pin, onEdge EdgeFunc) (*Watcher, error) {
	if err := pin.Setup(); err != nil {
		return nil, err
	}
	f, err := os.Open(pin.ValuePath())
	if err != nil {
		return nil, fmt.Errorf("gpio: open value: %w", err)
	}
	return &Watcher{pin: pin, onEdge: onEdge, f: f}, nil
}

// Run waits for edges until ctx is cancelled. The current level is
// reported once at start.
func (w *Watcher) Run(ctx context.Context) error {
	buf := make([]byte, 8)
	if err := w.read(buf); err != nil {
		return err
	}
	fds := []unix.PollFd{{Fd: int32(w.f.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("gpio: poll: %w", err)
		}
		if n == 0 || fds[0].Revents&unix.POLLPRI == 0 {
			continue
		}
		if err := w.read(buf); err != nil {
			slog.Warn("[BUTTON] GPIO read failed", "pin", w.pin.Number, "error", err)
		}
	}
}

// read rereads the value file from the start and reports the level.
func (w *Watcher) read(buf []byte) error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("gpio: seek: %w", err)
	}
	n, err := w.f.Read(buf)
	if err != nil {
		return fmt.Errorf("gpio: read: %w", err)
	}
	pressed, err := w.pin.pressed(buf[:n])
	if err != nil {
		return err
	}
	w.onEdge(pressed, time.Now())
	return nil
}

// Close releases the value file.
func (w *Watcher) Close() error {
	return w.f.Close()
}
