//go:build !windows

package app

import (
	"os"
	"syscall"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// terminate asks the daemon to shut down; it cancels its watch loop and
// removes its own PID file.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// processExists probes pid with signal 0.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
