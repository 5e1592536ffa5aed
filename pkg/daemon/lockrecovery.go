package daemon

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// RecoverFromStaleDaemon cleans up after a daemon that exited without
// removing its PID file, socket, or cache snapshot lock.
// Returns ErrDaemonAlreadyRunning if a daemon is actually running.
// An empty snapshotPath skips the lock cleanup.
func RecoverFromStaleDaemon(pidPath, socketPath, snapshotPath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		// No PID file or invalid PID means nothing to recover
		return nil //nolint:nilerr // missing/invalid PID file is not an error condition
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	log := logging.Get("daemon")
	log.Warn("cleaning up stale daemon files", "stale_pid", pid)

	// Files may not exist
	_ = os.Remove(pidPath)
	_ = os.Remove(socketPath)
	if snapshotPath != "" {
		_ = os.Remove(filepath.Join(snapshotPath, "LOCK"))
	}

	return nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
