package launch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/lifecycle"
)

// ComponentProcess is the supervisor config for one component process
type ComponentProcess struct {
	// Manifest of the component
	Manifest *Manifest

	// EnvBin is the bin directory of the provisioned environment,
	// empty when the component runs without one
	EnvBin string

	// RunDir holds pid and log files
	RunDir string

	// SessionID identifies this stack launch
	SessionID string
}

// processHandle tracks one running OS process
type processHandle struct {
	Process   *os.Process
	Cmd       *exec.Cmd
	Config    *ComponentProcess
	StartTime time.Time
	HealthURL string
	LogPath   string

	mu       sync.Mutex
	exited   bool
	exitErr  error
	waitedCh chan struct{}
}

func (h *processHandle) markExited(err error) {
	h.mu.Lock()
	h.exited = true
	h.exitErr = err
	h.mu.Unlock()
	close(h.waitedCh)
}

func (h *processHandle) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// componentSyncer implements lifecycle.Syncer by launching component
// processes with their provisioned environments
type componentSyncer struct {
	log    *slog.Logger
	events EventPublisher

	// onRestart reports relaunches back to the supervisor
	onRestart func(lifecycle.ComponentID)

	mu           sync.RWMutex
	handles      map[lifecycle.ComponentID]*processHandle
	restartCount map[lifecycle.ComponentID]int
}

func newComponentSyncer(log *slog.Logger, events EventPublisher) *componentSyncer {
	if log == nil {
		log = slog.Default()
	}
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &componentSyncer{
		log:          log,
		events:       events,
		handles:      make(map[lifecycle.ComponentID]*processHandle),
		restartCount: make(map[lifecycle.ComponentID]int),
	}
}

// SyncComponent implements lifecycle.Syncer. It launches the component if
// needed and verifies it is alive and healthy on every resync.
func (s *componentSyncer) SyncComponent(ctx context.Context, kind lifecycle.UpdateKind, config interface{}) (terminal bool, err error) {
	proc, ok := config.(*ComponentProcess)
	if !ok {
		return false, fmt.Errorf("invalid config type: expected *ComponentProcess")
	}

	manifest := proc.Manifest
	id := lifecycle.ComponentID(manifest.Name)

	s.mu.RLock()
	handle, exists := s.handles[id]
	s.mu.RUnlock()

	if exists {
		if !handle.hasExited() {
			if !manifest.HealthCheck.Enabled() || s.checkHealth(handle) {
				return false, nil
			}

			s.log.Warn("component unhealthy, restarting", "component", manifest.Name)
			s.events.PublishEvent(ctx, manifest.Name, "unhealthy",
				"health check failed, restarting", nil)
			handle.Process.Kill()
			<-handle.waitedCh
		} else {
			// Process exited on its own
			s.events.PublishEvent(ctx, manifest.Name, "crashed",
				"process exited unexpectedly",
				map[string]string{"error": fmt.Sprintf("%v", handle.exitErr)})

			if manifest.Role == RoleFrontend {
				// Frontend exit ends the stack rather than restarting
				return true, nil
			}
		}

		s.mu.Lock()
		s.restartCount[id]++
		restarts := s.restartCount[id]
		s.mu.Unlock()

		if s.onRestart != nil {
			s.onRestart(id)
		}

		if restarts > 5 {
			return true, ErrProcessCrashed(manifest.Name, restarts)
		}
	}

	handle, err = s.launch(ctx, proc)
	if err != nil {
		return false, ErrProcessStartFailed(manifest.Name, err)
	}

	s.mu.Lock()
	s.handles[id] = handle
	s.mu.Unlock()

	if err := s.waitForReady(ctx, handle); err != nil {
		handle.Process.Kill()
		return false, err
	}

	s.events.PublishEvent(ctx, manifest.Name, "ready", "component is ready",
		map[string]string{"pid": fmt.Sprintf("%d", handle.Process.Pid)})

	return false, nil
}

// launch starts the component process detached into its own process group
func (s *componentSyncer) launch(ctx context.Context, proc *ComponentProcess) (*processHandle, error) {
	manifest := proc.Manifest

	command := manifest.Command
	if proc.EnvBin != "" && !filepath.IsAbs(command) {
		candidate := filepath.Join(proc.EnvBin, command)
		if _, err := os.Stat(candidate); err == nil {
			command = candidate
		}
	}

	logPath := LogPath(proc.RunDir, manifest.Name)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// exec.Command, not CommandContext: the process must survive a
	// detached launcher exit and is stopped explicitly via signals
	cmd := exec.Command(command, manifest.Args...)
	cmd.Dir = manifest.Dir()

	env := os.Environ()
	if proc.EnvBin != "" {
		env = append(env, fmt.Sprintf("PATH=%s:%s", proc.EnvBin, os.Getenv("PATH")))
		env = append(env, fmt.Sprintf("VIRTUAL_ENV=%s", filepath.Dir(proc.EnvBin)))
	}
	env = append(env,
		fmt.Sprintf("COMPONENT_NAME=%s", manifest.Name),
		fmt.Sprintf("COMPONENT_ROLE=%s", manifest.Role),
		fmt.Sprintf("SESSION_ID=%s", proc.SessionID),
	)
	if manifest.HealthCheck.Enabled() {
		env = append(env, fmt.Sprintf("PORT=%d", manifest.HealthCheck.Port))
	}
	for k, v := range manifest.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// New process group so the component is not killed with the launcher
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	s.events.PublishEvent(ctx, manifest.Name, "starting", "launching component", nil)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	// The child holds its own handle to the log file
	logFile.Close()

	if err := WritePIDFile(proc.RunDir, manifest.Name, cmd.Process.Pid); err != nil {
		s.log.Warn("could not write pid file", "component", manifest.Name, "err", err)
	}

	handle := &processHandle{
		Process:   cmd.Process,
		Cmd:       cmd,
		Config:    proc,
		StartTime: time.Now(),
		LogPath:   logPath,
		waitedCh:  make(chan struct{}),
	}
	if manifest.HealthCheck.Enabled() {
		handle.HealthURL = manifest.HealthCheck.URL()
	}

	// Reap the child and record its exit
	go func() {
		handle.markExited(cmd.Wait())
	}()

	s.log.Info("launched component",
		"component", manifest.Name, "pid", cmd.Process.Pid, "command", command, "log", logPath)

	return handle, nil
}

// waitForReady blocks until the component is ready. With a health check
// configured it polls the endpoint until the ready timeout; otherwise the
// manifest's fixed startup delay applies.
func (s *componentSyncer) waitForReady(ctx context.Context, handle *processHandle) error {
	manifest := handle.Config.Manifest

	if !manifest.HealthCheck.Enabled() {
		if manifest.StartupDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-handle.waitedCh:
				return ErrProcessStartFailed(manifest.Name,
					fmt.Errorf("process exited during startup delay: %v", handle.exitErr))
			case <-time.After(manifest.StartupDelay):
			}
		}
		return nil
	}

	interval := 100 * time.Millisecond
	deadline := time.Now().Add(manifest.HealthCheck.ReadyTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-handle.waitedCh:
			return ErrProcessStartFailed(manifest.Name,
				fmt.Errorf("process exited before becoming ready: %v", handle.exitErr))
		case <-time.After(interval):
			if s.checkHealth(handle) {
				s.log.Info("component ready", "component", manifest.Name)
				return nil
			}
		}
	}

	return ErrHealthCheckFailed(manifest.Name, handle.HealthURL,
		fmt.Errorf("readiness timeout after %v", manifest.HealthCheck.ReadyTimeout))
}

// checkHealth performs a single health probe
func (s *componentSyncer) checkHealth(handle *processHandle) bool {
	manifest := handle.Config.Manifest
	if !manifest.HealthCheck.Enabled() {
		return true
	}

	client := &http.Client{
		Timeout: manifest.HealthCheck.Timeout,
	}

	resp, err := client.Get(handle.HealthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// SyncStopping implements lifecycle.Syncer: SIGTERM, grace period, SIGKILL
func (s *componentSyncer) SyncStopping(ctx context.Context, config interface{}, gracePeriodSecs *int64, statusFn lifecycle.StatusFunc) error {
	proc, ok := config.(*ComponentProcess)
	if !ok {
		return fmt.Errorf("invalid config type: expected *ComponentProcess")
	}

	manifest := proc.Manifest
	id := lifecycle.ComponentID(manifest.Name)

	s.mu.RLock()
	handle, exists := s.handles[id]
	s.mu.RUnlock()

	if !exists || handle.hasExited() {
		s.log.Debug("component already stopped", "component", manifest.Name)
		reportStopped(statusFn)
		return nil
	}

	gracePeriod := manifest.GracePeriod
	if gracePeriodSecs != nil && *gracePeriodSecs > 0 {
		gracePeriod = time.Duration(*gracePeriodSecs) * time.Second
	}

	s.events.PublishEvent(ctx, manifest.Name, "stopping", "stopping component",
		map[string]string{"grace_period": gracePeriod.String()})

	if err := handle.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("SIGTERM failed, process may have exited",
			"component", manifest.Name, "err", err)
	}

	select {
	case <-handle.waitedCh:
		s.log.Info("component exited gracefully", "component", manifest.Name)
		s.events.PublishEvent(ctx, manifest.Name, "stopped", "component stopped", nil)
		reportStopped(statusFn)
		return nil

	case <-time.After(gracePeriod):
		s.log.Warn("grace period expired, force killing", "component", manifest.Name)
		if err := handle.Process.Kill(); err != nil {
			return ErrStopFailed(manifest.Name, err)
		}

		select {
		case <-handle.waitedCh:
			s.events.PublishEvent(ctx, manifest.Name, "stopped",
				"component force killed", nil)
			reportStopped(statusFn)
			return nil
		case <-time.After(5 * time.Second):
			return ErrStopFailed(manifest.Name, fmt.Errorf("process did not die after SIGKILL"))
		}
	}
}

// reportStopped delivers the final state to a stop requester
func reportStopped(statusFn lifecycle.StatusFunc) {
	if statusFn != nil {
		statusFn(&lifecycle.Status{State: lifecycle.StateStopped})
	}
}

// SyncStopped implements lifecycle.Syncer: release tracking and pid files
func (s *componentSyncer) SyncStopped(ctx context.Context, config interface{}) error {
	proc, ok := config.(*ComponentProcess)
	if !ok {
		return fmt.Errorf("invalid config type: expected *ComponentProcess")
	}

	id := lifecycle.ComponentID(proc.Manifest.Name)

	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()

	RemovePIDFile(proc.RunDir, proc.Manifest.Name)

	return nil
}

// Handle returns the live process handle for a component, if any
func (s *componentSyncer) Handle(id lifecycle.ComponentID) (*processHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

var _ lifecycle.Syncer = (*componentSyncer)(nil)
