package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSyncer is a mock implementation of Syncer for testing
type mockSyncer struct {
	mu sync.Mutex

	syncCalled     int
	stoppingCalled int
	stoppedCalled  int

	syncErr     error
	stoppingErr error
	stoppedErr  error

	syncDuration time.Duration
	syncTerminal bool

	lastStoppingConfig interface{}
}

func (ms *mockSyncer) SyncComponent(ctx context.Context, kind UpdateKind, config interface{}) (bool, error) {
	ms.mu.Lock()
	ms.syncCalled++
	terminal := ms.syncTerminal
	err := ms.syncErr
	duration := ms.syncDuration
	ms.mu.Unlock()

	if duration > 0 {
		select {
		case <-time.After(duration):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return terminal, err
}

func (ms *mockSyncer) SyncStopping(ctx context.Context, config interface{}, gracePeriodSecs *int64, statusFn StatusFunc) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.stoppingCalled++
	ms.lastStoppingConfig = config
	return ms.stoppingErr
}

func (ms *mockSyncer) SyncStopped(ctx context.Context, config interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.stoppedCalled++
	return ms.stoppedErr
}

func (ms *mockSyncer) getSyncCalled() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.syncCalled
}

func (ms *mockSyncer) getStoppingCalled() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.stoppingCalled
}

func (ms *mockSyncer) getStoppedCalled() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.stoppedCalled
}

func (ms *mockSyncer) getLastStoppingConfig() interface{} {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.lastStoppingConfig
}

func (ms *mockSyncer) setSyncErr(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.syncErr = err
}

// TestSupervisor_StartComponent tests starting a single component
func TestSupervisor_StartComponent(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	s.Update(Update{
		ID:     "backend",
		Kind:   KindStart,
		Config: &struct{}{},
	})

	require.Eventually(t, func() bool {
		status, ok := s.ComponentStatus("backend")
		return ok && status.State == StateRunning
	}, 2*time.Second, 50*time.Millisecond, "component should reach Running")

	status, ok := s.ComponentStatus("backend")
	require.True(t, ok, "component should exist")
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, syncer.getSyncCalled(), "sync should be called once")
}

// TestSupervisor_StopComponent tests the full stop sequence
func TestSupervisor_StopComponent(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	s.Update(Update{
		ID:     "backend",
		Kind:   KindStart,
		Config: &struct{}{},
	})

	require.Eventually(t, func() bool {
		return syncer.getSyncCalled() > 0
	}, 2*time.Second, 50*time.Millisecond)

	doneCh := make(chan struct{})
	grace := int64(1)

	s.Update(Update{
		ID:   "backend",
		Kind: KindStop,
		StopOptions: &StopOptions{
			DoneCh:          doneCh,
			GracePeriodSecs: &grace,
		},
	})

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not complete")
	}

	assert.GreaterOrEqual(t, syncer.getStoppingCalled(), 1, "stopping hook should run")
	assert.True(t, s.IsStopped("backend"))

	// Cleanup phase follows immediately
	require.Eventually(t, func() bool {
		return s.IsDone("backend")
	}, 5*time.Second, 50*time.Millisecond, "cleanup should complete")
	assert.GreaterOrEqual(t, syncer.getStoppedCalled(), 1)
}

// TestSupervisor_StopReusesStartConfig tests that a bare stop update
// reaches the syncer with the config the component was started with
func TestSupervisor_StopReusesStartConfig(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	cfg := &struct{ name string }{name: "backend"}

	s.Update(Update{
		ID:     "backend",
		Kind:   KindStart,
		Config: cfg,
	})

	require.Eventually(t, func() bool {
		status, ok := s.ComponentStatus("backend")
		return ok && status.State == StateRunning
	}, 2*time.Second, 50*time.Millisecond)

	doneCh := make(chan struct{})
	s.Update(Update{
		ID:          "backend",
		Kind:        KindStop,
		StopOptions: &StopOptions{DoneCh: doneCh},
	})

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not complete")
	}

	assert.Same(t, cfg, syncer.getLastStoppingConfig(),
		"stop without a config should inherit the start config")
}

// TestSupervisor_RecordRestart tests restart accounting
func TestSupervisor_RecordRestart(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	s.Update(Update{ID: "backend", Kind: KindStart, Config: &struct{}{}})

	require.Eventually(t, func() bool {
		status, ok := s.ComponentStatus("backend")
		return ok && status.State == StateRunning
	}, 2*time.Second, 50*time.Millisecond)

	s.RecordRestart("backend")
	s.RecordRestart("backend")

	status, ok := s.ComponentStatus("backend")
	require.True(t, ok)
	assert.Equal(t, 2, status.RestartCount)

	report := s.Health()
	assert.Equal(t, 2, report.Components["backend"].RestartCount)

	// Unknown components are ignored
	s.RecordRestart("ghost")
	_, ok = s.ComponentStatus("ghost")
	assert.False(t, ok)
}

// TestSupervisor_TerminalSync tests that a terminal sync result triggers shutdown
func TestSupervisor_TerminalSync(t *testing.T) {
	syncer := &mockSyncer{syncTerminal: true}
	s := NewSupervisor(
		WithSyncer(syncer),
		WithResyncInterval(200*time.Millisecond),
	)
	defer s.Shutdown(context.Background())

	s.Update(Update{
		ID:     "frontend",
		Kind:   KindStart,
		Config: &struct{}{},
	})

	require.Eventually(t, func() bool {
		return s.IsDone("frontend")
	}, 5*time.Second, 50*time.Millisecond, "terminal component should reach Done")
}

// TestSupervisor_SyncErrorRetries tests that errors are retried with backoff
func TestSupervisor_SyncErrorRetries(t *testing.T) {
	syncer := &mockSyncer{syncErr: errors.New("boom")}
	s := NewSupervisor(
		WithSyncer(syncer),
		WithBackOffPeriod(200*time.Millisecond),
	)
	defer s.Shutdown(context.Background())

	s.Update(Update{
		ID:     "backend",
		Kind:   KindStart,
		Config: &struct{}{},
	})

	require.Eventually(t, func() bool {
		return syncer.getSyncCalled() >= 2
	}, 10*time.Second, 50*time.Millisecond, "failing sync should be retried")

	status, ok := s.ComponentStatus("backend")
	require.True(t, ok)
	assert.Equal(t, StateStarting, status.State, "failing component never reaches Running")
	assert.Error(t, status.LastError)

	// Recovery clears the error state
	syncer.setSyncErr(nil)

	require.Eventually(t, func() bool {
		status, ok := s.ComponentStatus("backend")
		return ok && status.State == StateRunning
	}, 10*time.Second, 50*time.Millisecond, "component should recover")
}

// TestSupervisor_UpdateCoalescing tests that rapid updates coalesce
func TestSupervisor_UpdateCoalescing(t *testing.T) {
	syncer := &mockSyncer{syncDuration: 200 * time.Millisecond}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	for i := 0; i < 10; i++ {
		s.Update(Update{
			ID:     "backend",
			Kind:   KindResync,
			Config: &struct{}{},
		})
	}

	require.Eventually(t, func() bool {
		return syncer.getSyncCalled() > 0
	}, 2*time.Second, 50*time.Millisecond)

	time.Sleep(500 * time.Millisecond)

	// 10 updates while busy collapse into at most a few syncs
	assert.Less(t, syncer.getSyncCalled(), 5, "pending updates should coalesce")
}

// TestSupervisor_UpdateAfterDone tests that done components ignore updates
func TestSupervisor_UpdateAfterDone(t *testing.T) {
	syncer := &mockSyncer{syncTerminal: true}
	s := NewSupervisor(
		WithSyncer(syncer),
		WithResyncInterval(200*time.Millisecond),
	)
	defer s.Shutdown(context.Background())

	s.Update(Update{ID: "frontend", Kind: KindStart, Config: &struct{}{}})

	require.Eventually(t, func() bool {
		return s.IsDone("frontend")
	}, 5*time.Second, 50*time.Millisecond)

	before := syncer.getSyncCalled()
	s.Update(Update{ID: "frontend", Kind: KindStart, Config: &struct{}{}})
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, before, syncer.getSyncCalled(), "done component should ignore updates")
}

// TestSupervisor_SyncKnownComponents tests orphan detection
func TestSupervisor_SyncKnownComponents(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(
		WithSyncer(syncer),
		WithResyncInterval(200*time.Millisecond),
	)
	defer s.Shutdown(context.Background())

	s.Update(Update{ID: "backend", Kind: KindStart, Config: &struct{}{}})
	s.Update(Update{ID: "orphan", Kind: KindStart, Config: &struct{}{}})

	require.Eventually(t, func() bool {
		return syncer.getSyncCalled() >= 2
	}, 2*time.Second, 50*time.Millisecond)

	result := s.SyncKnownComponents([]ComponentID{"backend"})

	assert.Contains(t, result, ComponentID("backend"))

	require.Eventually(t, func() bool {
		return s.IsStopped("orphan") || s.IsDone("orphan")
	}, 5*time.Second, 50*time.Millisecond, "orphan should be stopped")
}

// TestSupervisor_Health tests the health report
func TestSupervisor_Health(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))
	defer s.Shutdown(context.Background())

	s.Update(Update{ID: "a", Kind: KindStart, Config: &struct{}{}})
	s.Update(Update{ID: "b", Kind: KindStart, Config: &struct{}{}})

	require.Eventually(t, func() bool {
		report := s.Health()
		return report.RunningComponents == 2
	}, 5*time.Second, 50*time.Millisecond)

	report := s.Health()
	assert.Equal(t, 2, report.TotalComponents)
	assert.Len(t, report.Components, 2)
	for _, health := range report.Components {
		assert.True(t, health.Healthy)
	}
}

// TestSupervisor_Shutdown tests that shutdown stops all workers
func TestSupervisor_Shutdown(t *testing.T) {
	syncer := &mockSyncer{}
	s := NewSupervisor(WithSyncer(syncer))

	s.Update(Update{ID: "a", Kind: KindStart, Config: &struct{}{}})

	require.Eventually(t, func() bool {
		return syncer.getSyncCalled() > 0
	}, 2*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Shutdown(ctx)
	assert.NoError(t, err)
}
