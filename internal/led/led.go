// Package led drives the RGB status LED: blue while streaming to a
// connected phone, red while recording without one, white while charging
// idle, off otherwise.
package led

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chaz8081/pendant/internal/session"
)

// Color is a combination of the red, green and blue channels.
type Color uint8

const (
	Off   Color = 0
	Red   Color = 1 << 0
	Green Color = 1 << 1
	Blue  Color = 1 << 2
	White       = Red | Green | Blue
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	default:
		return fmt.Sprintf("rgb(%03b)", uint8(c))
	}
}

// Indicator shows a color.
type Indicator interface {
	Set(c Color) error
}

// SysfsIndicator writes the brightness files of three LED class devices.
// An empty path skips that channel.
type SysfsIndicator struct {
	Red, Green, Blue string
}

func (s SysfsIndicator) Set(c Color) error {
	channels := []struct {
		path string
		on   bool
	}{
		{s.Red, c&Red != 0},
		{s.Green, c&Green != 0},
		{s.Blue, c&Blue != 0},
	}
	for _, ch := range channels {
		if ch.path == "" {
			continue
		}
		v := "0"
		if ch.on {
			v = "1"
		}
		if err := os.WriteFile(ch.path, []byte(v), 0o644); err != nil {
			return fmt.Errorf("led: write %s: %w", ch.path, err)
		}
	}
	return nil
}

// LogIndicator logs colors instead of lighting anything.
type LogIndicator struct{}

func (LogIndicator) Set(c Color) error {
	slog.Info("[LED] color", "color", c)
	return nil
}

// Sessions is the status task's view of the session manager.
type Sessions interface {
	Current() (session.Session, bool)
}

// Select picks the color for the device state.
func Select(recording, connected, charging bool) Color {
	switch {
	case recording && connected:
		return Blue
	case recording:
		return Red
	case charging:
		return White
	default:
		return Off
	}
}

// Status recomputes the LED color on every tick and updates the indicator
// when it changes.
type Status struct {
	ind       Indicator
	sessions  Sessions
	charging  func() bool
	recording bool

	mu      sync.Mutex
	current Color
	applied bool
}

// NewStatus returns a status task. charging may be nil.
func NewStatus(ind Indicator, sessions Sessions, charging func() bool, recording bool) *Status {
	return &Status{ind: ind, sessions: sessions, charging: charging, recording: recording}
}

// Tick is the periodic task body.
func (s *Status) Tick(context.Context) {
	_, connected := s.sessions.Current()
	charging := s.charging != nil && s.charging()
	c := Select(s.recording, connected, charging)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied && c == s.current {
		return
	}
	if err := s.ind.Set(c); err != nil {
		slog.Error("[LED] set failed", "color", c, "error", err)
		return
	}
	s.current = c
	s.applied = true
}

// Color returns the last applied color.
func (s *Status) Color() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
