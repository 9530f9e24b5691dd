package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LogPath returns the log file path for a component
func LogPath(runDir, name string) string {
	return filepath.Join(runDir, name+".log")
}

// PIDPath returns the pid file path for a component
func PIDPath(runDir, name string) string {
	return filepath.Join(runDir, name+".pid")
}

// WritePIDFile records the pid of a launched component
func WritePIDFile(runDir, name string, pid int) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	return os.WriteFile(PIDPath(runDir, name), []byte(strconv.Itoa(pid)), 0o644)
}

// ReadPIDFile returns the recorded pid for a component
func ReadPIDFile(runDir, name string) (int, error) {
	data, err := os.ReadFile(PIDPath(runDir, name))
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", PIDPath(runDir, name), err)
	}
	return pid, nil
}

// RemovePIDFile deletes the pid file for a component, ignoring absence
func RemovePIDFile(runDir, name string) {
	os.Remove(PIDPath(runDir, name))
}

// ProcessAlive reports whether a process with the given pid exists.
// On unix FindProcess always succeeds, so probe with signal 0.
func ProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// StopByPIDFile stops a component from its pid file. Used when the stop
// runs in a different process than the one that launched the stack.
// SIGTERM first, then SIGKILL after the grace period.
func StopByPIDFile(runDir, name string, gracePeriod time.Duration) error {
	pid, err := ReadPIDFile(runDir, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	defer RemovePIDFile(runDir, name)

	if !ProcessAlive(pid) {
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Already gone
		return nil
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := process.Kill(); err != nil {
		return ErrStopFailed(name, err)
	}
	return nil
}
