package dfu

import (
	"log/slog"
	"os"
)

// ExitCode is the status ExitRestarter exits with, so a supervisor can
// tell an update restart from a crash.
const ExitCode = 3

// ExitRestarter ends the process and leaves the restart to a supervisor.
type ExitRestarter struct {
	// Exit defaults to os.Exit.
	Exit func(code int)
}

// Restart exits the process.
func (r ExitRestarter) Restart() error {
	slog.Warn("[DFU] Exiting for restart", "code", ExitCode)
	exit := r.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(ExitCode)
	return nil
}
