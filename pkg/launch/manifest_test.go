package launch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "component.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backend")
	path := writeManifest(t, dir, `
name: backend
role: backend
command: uvicorn
args: ["main:app", "--port", "8000"]
env:
  dir: venv
  requirements: requirements.txt
healthcheck:
  port: 8000
  path: /healthz
  ready_timeout: 10s
grace_period: 5s
environment:
  APP_ENV: local
description: API server
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "backend", m.Name)
	assert.Equal(t, RoleBackend, m.Role)
	assert.Equal(t, "uvicorn", m.Command)
	assert.Equal(t, []string{"main:app", "--port", "8000"}, m.Args)
	assert.Equal(t, 5*time.Second, m.GracePeriod)
	assert.Equal(t, "local", m.Environment["APP_ENV"])

	assert.True(t, m.HealthCheck.Enabled())
	assert.Equal(t, "http://localhost:8000/healthz", m.HealthCheck.URL())
	assert.Equal(t, 10*time.Second, m.HealthCheck.ReadyTimeout)

	assert.Equal(t, filepath.Join(dir, "venv"), m.EnvDir())
	assert.Equal(t, filepath.Join(dir, "requirements.txt"), m.RequirementsPath())
	assert.Equal(t, dir, m.Dir())
}

func TestLoadManifest_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backend")
	path := writeManifest(t, dir, `
name: backend
command: ./run.sh
healthcheck:
  port: 9000
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, RoleBackend, m.Role, "role defaults to backend")
	assert.Equal(t, "/health", m.HealthCheck.Path)
	assert.Equal(t, 30*time.Second, m.HealthCheck.Interval)
	assert.Equal(t, 5*time.Second, m.HealthCheck.Timeout)
	assert.Equal(t, 3, m.HealthCheck.FailureThreshold)
	assert.Equal(t, 30*time.Second, m.HealthCheck.ReadyTimeout)
	assert.Equal(t, 10*time.Second, m.GracePeriod)
}

func TestLoadManifest_NoHealthCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "web")
	path := writeManifest(t, dir, `
name: web
role: frontend
command: npm
args: ["run", "dev"]
startup_delay: 2s
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, RoleFrontend, m.Role)
	assert.False(t, m.HealthCheck.Enabled())
	assert.Equal(t, 2*time.Second, m.StartupDelay)
	assert.Empty(t, m.EnvDir(), "no env configured")
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{
			name:     "missing name",
			manifest: Manifest{Command: "run"},
			wantErr:  "name is required",
		},
		{
			name:     "missing command",
			manifest: Manifest{Name: "x"},
			wantErr:  "command is required",
		},
		{
			name:     "bad role",
			manifest: Manifest{Name: "x", Command: "run", Role: "sidecar"},
			wantErr:  "invalid role",
		},
		{
			name: "bad port",
			manifest: Manifest{
				Name: "x", Command: "run",
				HealthCheck: HealthCheckConfig{Port: 70000},
			},
			wantErr: "healthcheck.port",
		},
		{
			name: "self dependency",
			manifest: Manifest{
				Name: "x", Command: "run", DependsOn: []string{"x"},
			},
			wantErr: "cannot depend on itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadManifest_InvalidYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bad")
	path := writeManifest(t, dir, "name: [unclosed")

	_, err := LoadManifest(path)
	assert.Error(t, err)
}
