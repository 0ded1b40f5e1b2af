// Package dfu handles writes to the firmware-update control point. A
// recognised command persists a boot marker and restarts the device so
// the bootloader enters update mode.
package dfu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/pendant/internal/ble/protocol"
	"github.com/chaz8081/pendant/internal/metrics"
)

// ErrRestartFailed wraps failures of the restart primitive.
var ErrRestartFailed = errors.New("dfu: restart failed")

// Marker persists the boot marker read by the bootloader.
type Marker interface {
	Persist(value byte) error
}

// Restarter restarts the device. On success it normally does not return.
type Restarter interface {
	Restart() error
}

// Notifier sends a notification on the control point.
type Notifier interface {
	NotifyDFU(payload []byte) error
}

// Controller interprets control point writes.
type Controller struct {
	marker    Marker
	restarter Restarter
	notifier  Notifier
	value     byte
}

// NewController returns a Controller persisting value as the marker.
// A zero value uses protocol.DFUMarker.
func NewController(marker Marker, restarter Restarter, notifier Notifier, value byte) *Controller {
	if value == 0 {
		value = protocol.DFUMarker
	}
	return &Controller{marker: marker, restarter: restarter, notifier: notifier, value: value}
}

// SetNotifier replaces the notifier. The BLE server is created after the
// controller, so it installs itself here.
func (c *Controller) SetNotifier(n Notifier) {
	c.notifier = n
}

// HandleWrite processes one control point write and returns the number
// of bytes accepted, which is always len(payload). Unrecognised payloads
// are ignored.
func (c *Controller) HandleWrite(payload []byte) int {
	switch {
	case len(payload) == 1 && payload[0] == protocol.DFUOpEnterBootloader:
		slog.Warn("[DFU] Enter bootloader requested")
		metrics.DFUTriggers.WithLabelValues("enter_bootloader").Inc()
		c.enterUpdateMode()

	case len(payload) == 2 && payload[0] == protocol.DFUOpStartDFU:
		slog.Warn("[DFU] Start DFU requested", "arg", payload[1])
		metrics.DFUTriggers.WithLabelValues("start_dfu").Inc()
		if c.notifier != nil {
			if err := c.notifier.NotifyDFU([]byte{protocol.DFUAck}); err != nil {
				slog.Warn("[DFU] Failed to acknowledge", "error", err)
			}
		}
		c.enterUpdateMode()

	default:
		slog.Debug("[DFU] Ignoring control write", "len", len(payload))
	}
	return len(payload)
}

func (c *Controller) enterUpdateMode() {
	if err := c.marker.Persist(c.value); err != nil {
		// Restart anyway; the device comes back in normal mode.
		slog.Error("[DFU] Failed to persist marker", "error", err)
	}
	if err := c.restarter.Restart(); err != nil {
		slog.Error("[DFU] Restart failed", "error", err)
	}
}

// restartError wraps err with ErrRestartFailed.
func restartError(err error) error {
	return fmt.Errorf("%w: %w", ErrRestartFailed, err)
}
