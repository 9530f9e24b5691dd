package launch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ReapOrphans scans the run directory for pid files left by a previous
// session and terminates any process still alive. Stale pid files for
// dead processes are removed. Components not in knownNames are reaped
// too; their manifests may have been deleted since the last launch.
func ReapOrphans(runDir string, knownNames []string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(runDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("could not scan run directory for orphans", "dir", runDir, "err", err)
		}
		return
	}

	known := make(map[string]bool, len(knownNames))
	for _, name := range knownNames {
		known[name] = true
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pid") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".pid")

		pid, err := ReadPIDFile(runDir, name)
		if err != nil {
			log.Warn("removing unreadable pid file", "component", name, "err", err)
			RemovePIDFile(runDir, name)
			continue
		}

		if !ProcessAlive(pid) {
			log.Debug("removing stale pid file", "component", name, "pid", pid)
			RemovePIDFile(runDir, name)
			continue
		}

		if !known[name] {
			log.Warn("reaping orphan process with no manifest", "component", name, "pid", pid)
		} else {
			log.Warn("reaping leftover process from previous session", "component", name, "pid", pid)
		}

		if err := terminate(pid, 5*time.Second); err != nil {
			log.Warn("could not reap orphan", "component", name, "pid", pid, "err", err)
			continue
		}
		RemovePIDFile(runDir, name)
	}
}

// terminate sends SIGTERM and escalates to SIGKILL after the grace period
func terminate(pid int, grace time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Already gone
		return nil
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return process.Kill()
}

// envBinDir returns the executable directory of a provisioned environment
func envBinDir(envDir string) string {
	return filepath.Join(envDir, "bin")
}
