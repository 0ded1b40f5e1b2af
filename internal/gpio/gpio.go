// Package gpio watches a button pin through the Linux sysfs GPIO interface
// and reports its edges.
package gpio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EdgeFunc receives each raw edge.
type EdgeFunc func(pressed bool, at time.Time)

// Pin describes a sysfs GPIO input.
type Pin struct {
	Root      string // usually /sys/class/gpio
	Number    int
	ActiveLow bool // pressed reads as 0
}

func (p Pin) dir() string {
	return filepath.Join(p.Root, "gpio"+strconv.Itoa(p.Number))
}

// ValuePath returns the path of the pin's value file.
func (p Pin) ValuePath() string {
	return filepath.Join(p.dir(), "value")
}

// Setup exports the pin if needed and configures it as an input that
// reports both edges.
func (p Pin) Setup() error {
	if _, err := os.Stat(p.dir()); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(p.Root, "export"), []byte(strconv.Itoa(p.Number)), 0o644); err != nil {
			return fmt.Errorf("gpio: export pin %d: %w", p.Number, err)
		}
	}
	if err := os.WriteFile(filepath.Join(p.dir(), "direction"), []byte("in"), 0o644); err != nil {
		return fmt.Errorf("gpio: set direction of pin %d: %w", p.Number, err)
	}
	if err := os.WriteFile(filepath.Join(p.dir(), "edge"), []byte("both"), 0o644); err != nil {
		return fmt.Errorf("gpio: set edge of pin %d: %w", p.Number, err)
	}
	return nil
}

// pressed interprets a raw value file read.
func (p Pin) pressed(raw []byte) (bool, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "1":
		return !p.ActiveLow, nil
	case "0":
		return p.ActiveLow, nil
	default:
		return false, fmt.Errorf("gpio: unexpected value %q on pin %d", raw, p.Number)
	}
}
