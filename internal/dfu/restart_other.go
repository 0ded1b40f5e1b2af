//go:build !linux

package dfu

import "errors"

// RebootRestarter is unavailable on this platform.
type RebootRestarter struct{}

// Restart always fails on this platform.
func (RebootRestarter) Restart() error {
	return restartError(errors.New("reboot is only supported on linux"))
}
