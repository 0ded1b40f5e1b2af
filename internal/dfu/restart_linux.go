//go:build linux

package dfu

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// RebootRestarter reboots the machine. It needs CAP_SYS_BOOT.
type RebootRestarter struct{}

// Restart flushes filesystems and reboots.
func (RebootRestarter) Restart() error {
	slog.Warn("[DFU] Rebooting")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return restartError(err)
	}
	return nil
}
