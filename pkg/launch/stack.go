// Package launch discovers stack components, provisions their
// environments, and supervises their processes. Components declare
// themselves with a component.yaml manifest; backends start first and
// gate dependents on readiness, the frontend runs last and its exit
// ends the stack.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FireFlamingo/GenAI-Hackathon/pkg/lifecycle"
	"github.com/FireFlamingo/GenAI-Hackathon/pkg/provision"
)

// Stack wires discovery, provisioning, and process supervision together
type Stack struct {
	registry    *Registry
	provisioner *provision.Provisioner
	supervisor  *lifecycle.Supervisor
	syncer      *componentSyncer

	runDir    string
	sessionID string
	log       *slog.Logger
	events    EventPublisher

	ordered []*Manifest
	started []*Manifest
}

// StackOption configures a Stack
type StackOption func(*stackConfig)

type stackConfig struct {
	log            *slog.Logger
	events         EventPublisher
	metrics        lifecycle.Metrics
	provisioner    *provision.Provisioner
	resyncInterval time.Duration
}

// WithLogger sets the stack logger
func WithLogger(log *slog.Logger) StackOption {
	return func(c *stackConfig) {
		c.log = log
	}
}

// WithEventPublisher sets the lifecycle event sink
func WithEventPublisher(events EventPublisher) StackOption {
	return func(c *stackConfig) {
		c.events = events
	}
}

// WithMetrics sets the supervision metrics sink
func WithMetrics(m lifecycle.Metrics) StackOption {
	return func(c *stackConfig) {
		c.metrics = m
	}
}

// WithProvisioner replaces the environment provisioner
func WithProvisioner(p *provision.Provisioner) StackOption {
	return func(c *stackConfig) {
		c.provisioner = p
	}
}

// WithResyncInterval sets how often running components are re-verified
func WithResyncInterval(d time.Duration) StackOption {
	return func(c *stackConfig) {
		c.resyncInterval = d
	}
}

// NewStack creates a stack over the given components directory.
// runDir holds pid and log files for launched components.
func NewStack(componentsDir, runDir string, opts ...StackOption) *Stack {
	cfg := &stackConfig{
		log:            slog.Default(),
		metrics:        lifecycle.NewNoopMetrics(),
		resyncInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.events == nil {
		cfg.events = NewLogEventPublisher(cfg.log)
	}
	if cfg.provisioner == nil {
		cfg.provisioner = provision.New(provision.WithLogger(cfg.log))
	}

	syncer := newComponentSyncer(cfg.log, cfg.events)

	supervisor := lifecycle.NewSupervisor(
		lifecycle.WithSyncer(syncer),
		lifecycle.WithResyncInterval(cfg.resyncInterval),
		lifecycle.WithLogger(cfg.log),
		lifecycle.WithMetrics(cfg.metrics),
	)
	syncer.onRestart = supervisor.RecordRestart

	return &Stack{
		registry:    NewRegistry(componentsDir, cfg.log),
		provisioner: cfg.provisioner,
		supervisor:  supervisor,
		syncer:      syncer,
		runDir:      runDir,
		sessionID:   uuid.NewString(),
		log:         cfg.log,
		events:      cfg.events,
	}
}

// Registry exposes the component registry (for status and logs commands)
func (s *Stack) Registry() *Registry {
	return s.registry
}

// Supervisor exposes the lifecycle supervisor
func (s *Stack) Supervisor() *lifecycle.Supervisor {
	return s.supervisor
}

// SessionID identifies this stack launch
func (s *Stack) SessionID() string {
	return s.sessionID
}

// Provision discovers components and ensures every declared environment
// exists. Safe to run repeatedly; existing environments are skipped.
func (s *Stack) Provision(ctx context.Context) error {
	if err := s.registry.Discover(); err != nil {
		return err
	}

	ordered, err := s.registry.Order()
	if err != nil {
		return err
	}

	for _, m := range ordered {
		if err := s.provisionComponent(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (s *Stack) provisionComponent(ctx context.Context, m *Manifest) error {
	if m.Env.Dir == "" {
		return nil
	}

	s.events.PublishEvent(ctx, m.Name, "provisioning", "ensuring environment", nil)

	result, err := s.provisioner.Ensure(ctx, provision.Spec{
		Component:    m.Name,
		Dir:          m.EnvDir(),
		Requirements: m.RequirementsPath(),
		Interpreter:  m.Env.Interpreter,
	})
	if err != nil {
		code := ErrorCodeEnvCreateFailed
		var provErr *provision.Error
		if errors.As(err, &provErr) && provErr.Phase == provision.PhaseInstall {
			code = ErrorCodeEnvInstallFailed
		}
		return NewError(code, fmt.Sprintf("provisioning failed for component '%s'", m.Name)).
			WithContext("component", m.Name).
			WithContext("dir", m.EnvDir()).
			WithCause(err).
			WithSuggestion("Check the interpreter is installed and the requirements file is valid")
	}

	s.events.PublishEvent(ctx, m.Name, "provisioned", "environment ready",
		map[string]string{"created": fmt.Sprintf("%t", result.Created)})

	return nil
}

// Up discovers, provisions, and starts the whole stack in dependency
// order. Each component must report ready before the next one starts, so
// a backend failure means its dependents (including the frontend) are
// never launched. On failure everything already started is stopped.
func (s *Stack) Up(ctx context.Context) error {
	if err := s.registry.Discover(); err != nil {
		return err
	}

	ordered, err := s.registry.Order()
	if err != nil {
		return err
	}
	s.ordered = ordered

	ReapOrphans(s.runDir, componentNames(ordered), s.log)

	for _, m := range ordered {
		if err := s.provisionComponent(ctx, m); err != nil {
			s.teardownStarted()
			return err
		}
	}

	for _, m := range ordered {
		if err := s.startAndWait(ctx, m); err != nil {
			s.log.Error("component failed to start, aborting launch",
				"component", m.Name, "err", err)
			s.teardownStarted()
			return err
		}
		s.started = append(s.started, m)
	}

	s.log.Info("stack is up",
		"components", len(s.started), "session", s.sessionID)

	return nil
}

// startAndWait submits a start update and blocks until the component is
// running, failed, or the context is cancelled
func (s *Stack) startAndWait(ctx context.Context, m *Manifest) error {
	id := lifecycle.ComponentID(m.Name)

	proc := &ComponentProcess{
		Manifest:  m,
		RunDir:    s.runDir,
		SessionID: s.sessionID,
	}
	if m.EnvDir() != "" {
		proc.EnvBin = envBinDir(m.EnvDir())
	}

	s.supervisor.Update(lifecycle.Update{
		ID:     id,
		Kind:   lifecycle.KindStart,
		Config: proc,
	})

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, ok := s.supervisor.ComponentStatus(id)
			if !ok {
				continue
			}

			switch status.State {
			case lifecycle.StateRunning:
				return nil
			case lifecycle.StateStopped, lifecycle.StateDone:
				if status.LastError != nil {
					return status.LastError
				}
				return ErrProcessCrashed(m.Name, status.RestartCount)
			}

			if status.LastError != nil {
				return status.LastError
			}
		}
	}
}

// Wait blocks until the frontend exits, a component fails terminally, or
// the context is cancelled. With no frontend in the stack it blocks until
// cancellation.
func (s *Stack) Wait(ctx context.Context) error {
	var frontend *Manifest
	for _, m := range s.ordered {
		if m.Role == RoleFrontend {
			frontend = m
			break
		}
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if frontend == nil {
				continue
			}

			id := lifecycle.ComponentID(frontend.Name)
			if s.supervisor.IsStopped(id) || s.supervisor.IsDone(id) {
				s.log.Info("frontend exited, stack is finished", "component", frontend.Name)
				return nil
			}
		}
	}
}

// Down stops every started component in reverse launch order, then shuts
// the supervisor down
func (s *Stack) Down(ctx context.Context) error {
	for i := len(s.started) - 1; i >= 0; i-- {
		m := s.started[i]
		if err := s.stopAndWait(ctx, m); err != nil {
			s.log.Warn("component stop failed", "component", m.Name, "err", err)
		}
	}
	s.started = nil

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.supervisor.Shutdown(shutdownCtx)
}

func (s *Stack) stopAndWait(ctx context.Context, m *Manifest) error {
	id := lifecycle.ComponentID(m.Name)

	// Already fully stopped (e.g. a frontend that exited on its own)
	if s.supervisor.IsDone(id) {
		return nil
	}

	doneCh := make(chan struct{})
	graceSecs := int64(m.GracePeriod / time.Second)

	s.supervisor.Update(lifecycle.Update{
		ID:   id,
		Kind: lifecycle.KindStop,
		StopOptions: &lifecycle.StopOptions{
			DoneCh:          doneCh,
			GracePeriodSecs: &graceSecs,
		},
	})

	// Grace period plus slack for SIGKILL and cleanup
	timeout := m.GracePeriod + 10*time.Second
	deadline := time.After(timeout)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	stopped := false
	for {
		select {
		case <-doneCh:
			// Process is down; wait for the cleanup phase too
			stopped = true
			doneCh = nil
		case <-ticker.C:
			if s.supervisor.IsDone(id) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			if stopped || s.supervisor.IsStopped(id) {
				// Process is gone, only cleanup lagged
				return nil
			}
			return ErrStopFailed(m.Name, fmt.Errorf("timed out after %v", timeout))
		}
	}
}

// teardownStarted stops anything already launched after a failed Up and
// shuts the supervisor down so nothing keeps retrying in the background.
// The launch context may already be cancelled, so teardown runs on its
// own deadline.
func (s *Stack) teardownStarted() {
	if len(s.started) > 0 {
		s.log.Info("stopping partially started stack", "components", len(s.started))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := s.Down(ctx); err != nil {
		s.log.Warn("teardown failed", "err", err)
	}
}

// ComponentStatuses reports the supervisor status of every discovered
// component keyed by name
func (s *Stack) ComponentStatuses() map[string]lifecycle.Status {
	statuses := make(map[string]lifecycle.Status)
	for _, m := range s.registry.List() {
		if status, ok := s.supervisor.ComponentStatus(lifecycle.ComponentID(m.Name)); ok {
			statuses[m.Name] = *status
		}
	}
	return statuses
}

func componentNames(manifests []*Manifest) []string {
	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		names = append(names, m.Name)
	}
	return names
}
