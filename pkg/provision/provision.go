// Package provision creates isolated dependency environments for stack
// components. Provisioning is idempotent: an environment directory that
// already exists is left untouched, staleness is not detected.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Spec describes one environment to provision
type Spec struct {
	// Component name, used for logging and metrics
	Component string

	// Dir is the environment directory (e.g. "backend/venv")
	Dir string

	// Requirements is the dependency manifest installed into the environment
	Requirements string

	// Interpreter used to create the environment (default "python3")
	Interpreter string

	// InstallArgs are extra arguments passed to the installer
	InstallArgs []string
}

// Result reports the outcome of an Ensure call
type Result struct {
	// Created is false when the environment already existed and
	// provisioning was skipped entirely
	Created bool

	// Dir is the absolute environment directory
	Dir string

	// Duration covers create + install (zero when skipped)
	Duration time.Duration
}

// Runner executes provisioning commands. Swappable in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Provisioner ensures component environments exist
type Provisioner struct {
	runner  Runner
	log     *slog.Logger
	metrics Metrics
}

// ProvisionerOption configures a Provisioner
type ProvisionerOption func(*Provisioner)

// WithRunner replaces the command runner
func WithRunner(r Runner) ProvisionerOption {
	return func(p *Provisioner) {
		p.runner = r
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		p.log = log
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) ProvisionerOption {
	return func(p *Provisioner) {
		p.metrics = m
	}
}

// New creates a Provisioner
func New(opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		runner:  execRunner{},
		log:     slog.Default(),
		metrics: NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ensure makes sure the environment described by spec exists.
//
// If the environment directory already exists no command is run and
// Result.Created is false. Otherwise the environment is created with
// "<interpreter> -m venv <dir>" and the requirements manifest installed
// with the environment's own pip. Any failure aborts without cleanup;
// the caller decides whether a half-created environment is removed.
func (p *Provisioner) Ensure(ctx context.Context, spec Spec) (Result, error) {
	if spec.Dir == "" {
		return Result{}, fmt.Errorf("environment dir is required")
	}

	absDir, err := filepath.Abs(spec.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve environment dir: %w", err)
	}

	if _, err := os.Stat(absDir); err == nil {
		p.log.Info("environment exists, skipping provisioning",
			"component", spec.Component, "dir", absDir)
		p.metrics.EnvironmentSkipped(spec.Component)
		return Result{Created: false, Dir: absDir}, nil
	} else if !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("stat environment dir: %w", err)
	}

	interpreter := spec.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	start := time.Now()

	p.log.Info("creating environment", "component", spec.Component, "dir", absDir)
	if err := p.runner.Run(ctx, interpreter, "-m", "venv", absDir); err != nil {
		p.metrics.EnvironmentFailed(spec.Component, "create")
		return Result{}, &Error{
			Component: spec.Component,
			Phase:     PhaseCreate,
			Dir:       absDir,
			Cause:     err,
		}
	}

	if spec.Requirements != "" {
		pip := filepath.Join(absDir, "bin", "pip")
		args := append([]string{"install", "-r", spec.Requirements}, spec.InstallArgs...)

		p.log.Info("installing dependencies",
			"component", spec.Component, "requirements", spec.Requirements)
		if err := p.runner.Run(ctx, pip, args...); err != nil {
			p.metrics.EnvironmentFailed(spec.Component, "install")
			return Result{}, &Error{
				Component: spec.Component,
				Phase:     PhaseInstall,
				Dir:       absDir,
				Cause:     err,
			}
		}
	}

	duration := time.Since(start)
	p.metrics.EnvironmentCreated(spec.Component, duration)
	p.log.Info("environment ready",
		"component", spec.Component, "dir", absDir, "duration", duration)

	return Result{Created: true, Dir: absDir, Duration: duration}, nil
}

// Phase identifies the provisioning step that failed
type Phase string

const (
	// PhaseCreate - environment directory creation
	PhaseCreate Phase = "create"
	// PhaseInstall - dependency installation
	PhaseInstall Phase = "install"
)

// Error is a provisioning failure with the phase that caused it
type Error struct {
	Component string
	Phase     Phase
	Dir       string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision %s: %s phase failed for %s: %v",
		e.Component, e.Phase, e.Dir, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
