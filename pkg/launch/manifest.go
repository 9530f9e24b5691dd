package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Role places a component in the launch order
type Role string

const (
	// RoleBackend - long-running server started detached
	RoleBackend Role = "backend"
	// RoleFrontend - user-facing process; its exit ends the stack
	RoleFrontend Role = "frontend"
)

// Manifest is the declarative configuration for one stack component
type Manifest struct {
	// Name of the component (e.g. "mcp-server", "web-client")
	Name string `yaml:"name"`

	// Role of the component: backend or frontend
	Role Role `yaml:"role"`

	// Command run to start the component, resolved against the
	// environment's bin directory first, then PATH
	Command string `yaml:"command"`

	// Args passed to the command
	Args []string `yaml:"args"`

	// Env describes the isolated dependency environment
	Env EnvConfig `yaml:"env"`

	// HealthCheck gates dependents on readiness; optional
	HealthCheck HealthCheckConfig `yaml:"healthcheck"`

	// StartupDelay is a fixed pause after launch for components without
	// a health endpoint. Readiness polling is preferred; this exists for
	// components that expose nothing to poll.
	StartupDelay time.Duration `yaml:"startup_delay"`

	// GracePeriod before a stopping component is force-killed
	GracePeriod time.Duration `yaml:"grace_period"`

	// DependsOn lists components that must be ready first
	DependsOn []string `yaml:"depends_on"`

	// Environment variables set for the component process
	Environment map[string]string `yaml:"environment"`

	// Description of the component
	Description string `yaml:"description"`

	// Absolute path to the manifest file, populated during load
	manifestPath string `yaml:"-"`
}

// EnvConfig describes the component's isolated dependency environment
type EnvConfig struct {
	// Dir is the environment directory, relative to the manifest
	Dir string `yaml:"dir"`

	// Requirements is the dependency manifest, relative to the manifest
	Requirements string `yaml:"requirements"`

	// Interpreter used to create the environment (default python3)
	Interpreter string `yaml:"interpreter"`
}

// HealthCheckConfig defines readiness and liveness probing
type HealthCheckConfig struct {
	// Port of the HTTP health endpoint; 0 disables health checking
	Port int `yaml:"port"`

	// Path of the HTTP health endpoint
	Path string `yaml:"path"`

	// Interval between liveness checks
	Interval time.Duration `yaml:"interval"`

	// Timeout for a single check request
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold marks the component unhealthy after this many
	// consecutive failures
	FailureThreshold int `yaml:"failure_threshold"`

	// ReadyTimeout bounds the initial readiness wait after launch
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// Enabled reports whether health checking is configured
func (hc HealthCheckConfig) Enabled() bool {
	return hc.Port > 0
}

// URL returns the local health endpoint URL
func (hc HealthCheckConfig) URL() string {
	return fmt.Sprintf("http://localhost:%d%s", hc.Port, hc.Path)
}

// LoadManifest loads and validates a component manifest from a YAML file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	manifest.manifestPath = absPath

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	return &manifest, nil
}

// Validate checks required fields and applies defaults
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	if m.Command == "" {
		return fmt.Errorf("command is required")
	}

	switch m.Role {
	case RoleBackend, RoleFrontend:
		// Valid
	case "":
		m.Role = RoleBackend
	default:
		return fmt.Errorf("invalid role: %s (must be backend or frontend)", m.Role)
	}

	if m.HealthCheck.Port < 0 || m.HealthCheck.Port > 65535 {
		return fmt.Errorf("healthcheck.port must be between 0 and 65535, got: %d", m.HealthCheck.Port)
	}

	if m.HealthCheck.Enabled() {
		if m.HealthCheck.Path == "" {
			m.HealthCheck.Path = "/health"
		}
		if m.HealthCheck.Interval == 0 {
			m.HealthCheck.Interval = 30 * time.Second
		}
		if m.HealthCheck.Timeout == 0 {
			m.HealthCheck.Timeout = 5 * time.Second
		}
		if m.HealthCheck.FailureThreshold == 0 {
			m.HealthCheck.FailureThreshold = 3
		}
		if m.HealthCheck.ReadyTimeout == 0 {
			m.HealthCheck.ReadyTimeout = 30 * time.Second
		}
	}

	if m.GracePeriod == 0 {
		m.GracePeriod = 10 * time.Second
	}

	for _, dep := range m.DependsOn {
		if dep == m.Name {
			return fmt.Errorf("component %s cannot depend on itself", m.Name)
		}
	}

	return nil
}

// EnvDir returns the absolute environment directory, or "" when the
// component has no isolated environment
func (m *Manifest) EnvDir() string {
	if m.Env.Dir == "" {
		return ""
	}
	return m.resolve(m.Env.Dir)
}

// RequirementsPath returns the absolute dependency manifest path
func (m *Manifest) RequirementsPath() string {
	if m.Env.Requirements == "" {
		return ""
	}
	return m.resolve(m.Env.Requirements)
}

// ManifestPath returns the absolute path to the manifest file
func (m *Manifest) ManifestPath() string {
	return m.manifestPath
}

// Dir returns the component directory (where the manifest lives)
func (m *Manifest) Dir() string {
	return filepath.Dir(m.manifestPath)
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir(), path)
}
