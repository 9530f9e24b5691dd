package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ComponentState represents the lifecycle state of a supervised component
type ComponentState int

const (
	// StateStarting - component is being launched
	StateStarting ComponentState = iota
	// StateRunning - component is up and passing health checks
	StateRunning
	// StateStopping - component is shutting down
	StateStopping
	// StateStopped - component process has exited, awaiting cleanup
	StateStopped
	// StateDone - component fully cleaned up
	StateDone
)

// String returns the string representation of a ComponentState
func (cs ComponentState) String() string {
	switch cs {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ComponentID uniquely identifies a supervised component
type ComponentID string

// Update carries a requested state change for a component
type Update struct {
	ID          ComponentID
	Kind        UpdateKind
	RequestedAt time.Time
	Config      interface{} // Component-specific config
	StopOptions *StopOptions
}

// UpdateKind specifies the kind of update
type UpdateKind int

const (
	// KindStart - launch the component
	KindStart UpdateKind = iota
	// KindResync - periodic resync/health check
	KindResync
	// KindStop - stop the component
	KindStop
)

// String returns the string representation of an UpdateKind
func (uk UpdateKind) String() string {
	switch uk {
	case KindStart:
		return "Start"
	case KindResync:
		return "Resync"
	case KindStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// StopOptions control component shutdown
type StopOptions struct {
	DoneCh          chan<- struct{}
	GracePeriodSecs *int64
	StatusFunc      StatusFunc
}

// StatusFunc is called with the final status during shutdown
type StatusFunc func(status *Status)

// Status is the externally visible runtime state of a component
type Status struct {
	State        ComponentState
	Healthy      bool
	LastSync     time.Time
	ErrorCount   int
	LastError    error
	RestartCount int
}

// Syncer defines the lifecycle hooks driven by the Supervisor.
//
// SyncComponent must be idempotent: it is called on launch and again on
// every resync, and is expected to verify the component is still up.
type Syncer interface {
	// SyncComponent starts or verifies the component.
	// Returns (terminal, error) where terminal=true means the component
	// reached a terminal state and should be shut down.
	SyncComponent(ctx context.Context, kind UpdateKind, config interface{}) (terminal bool, err error)

	// SyncStopping stops the component, honoring the grace period.
	SyncStopping(ctx context.Context, config interface{}, gracePeriodSecs *int64, statusFn StatusFunc) error

	// SyncStopped cleans up resources after the component has exited.
	SyncStopped(ctx context.Context, config interface{}) error
}

// Supervisor manages 0 or more concurrent components
type Supervisor struct {
	mu sync.Mutex

	// Component tracking
	signals  map[ComponentID]chan struct{}
	statuses map[ComponentID]*componentStatus

	// Configuration
	syncer         Syncer
	resyncInterval time.Duration
	backOffPeriod  time.Duration
	retryQueue     RetryQueue
	metrics        Metrics
	log            *slog.Logger

	// Lifecycle
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// Internal per-component state, derived from lifecycle timestamps
type componentStatus struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	working bool
	pending *Update
	active  *Update

	// Lifecycle timestamps
	syncedAt   time.Time
	startedAt  time.Time
	stoppingAt time.Time
	stoppedAt  time.Time
	doneAt     time.Time

	// Shutdown metadata
	gracePeriod int64

	// Health tracking
	errorCount       int
	lastError        error
	restartCount     int
	consecutiveFails int
}

// State returns the current state of the component
func (cs *componentStatus) State() ComponentState {
	if !cs.doneAt.IsZero() {
		return StateDone
	}
	if !cs.stoppedAt.IsZero() {
		return StateStopped
	}
	if !cs.stoppingAt.IsZero() {
		return StateStopping
	}
	if !cs.syncedAt.IsZero() {
		return StateRunning
	}
	return StateStarting
}

func (cs *componentStatus) IsStopping() bool {
	return !cs.stoppingAt.IsZero()
}

func (cs *componentStatus) IsStopped() bool {
	return !cs.stoppedAt.IsZero()
}

func (cs *componentStatus) IsDone() bool {
	return !cs.doneAt.IsZero()
}

// Healthy returns true if the component is running with few recent errors
func (cs *componentStatus) Healthy() bool {
	return cs.errorCount < 5 && cs.State() == StateRunning
}

func (cs *componentStatus) snapshot() Status {
	return Status{
		State:        cs.State(),
		Healthy:      cs.Healthy(),
		LastSync:     cs.syncedAt,
		ErrorCount:   cs.errorCount,
		LastError:    cs.lastError,
		RestartCount: cs.restartCount,
	}
}
