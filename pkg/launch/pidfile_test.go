package launch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_RoundTrip(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run")

	require.NoError(t, WritePIDFile(runDir, "backend", 12345))

	pid, err := ReadPIDFile(runDir, "backend")
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	RemovePIDFile(runDir, "backend")

	_, err = ReadPIDFile(runDir, "backend")
	assert.True(t, os.IsNotExist(err))
}

func TestReadPIDFile_Garbage(t *testing.T) {
	runDir := t.TempDir()
	require.NoError(t, os.WriteFile(PIDPath(runDir, "backend"), []byte("not-a-pid"), 0o644))

	_, err := ReadPIDFile(runDir, "backend")
	assert.Error(t, err)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()), "our own process is alive")

	// Pid well above any default pid_max
	assert.False(t, ProcessAlive(1<<30))
}

func TestStopByPIDFile_NoFile(t *testing.T) {
	assert.NoError(t, StopByPIDFile(t.TempDir(), "ghost", 0))
}

func TestStopByPIDFile_DeadProcess(t *testing.T) {
	runDir := t.TempDir()
	require.NoError(t, WritePIDFile(runDir, "backend", 1<<30))

	require.NoError(t, StopByPIDFile(runDir, "backend", 0))

	_, err := ReadPIDFile(runDir, "backend")
	assert.True(t, os.IsNotExist(err), "stale pid file is removed")
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("run", "api.log"), LogPath("run", "api"))
	assert.Equal(t, filepath.Join("run", "api.pid"), PIDPath("run", "api"))
}
