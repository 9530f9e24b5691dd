package lifecycle

import (
	"time"
)

// Metrics is the sink for supervisor instrumentation
type Metrics interface {
	// StateTransition records a component state transition
	StateTransition(id ComponentID, fromState, toState ComponentState)

	// SyncDuration records the duration of a sync operation
	SyncDuration(id ComponentID, kind UpdateKind, duration time.Duration, err error)

	// StopDuration records the duration of a stop operation
	StopDuration(id ComponentID, duration time.Duration)

	// SyncError records a sync error by type
	SyncError(id ComponentID, errorType string)

	// Restart records a component restart
	Restart(id ComponentID)

	// QueueDepth records the current retry queue depth
	QueueDepth(depth int)

	// QueueAdd records an item added to the retry queue
	QueueAdd(id ComponentID, delay time.Duration)

	// QueueRetry records a retry taken from the queue
	QueueRetry(id ComponentID)

	// BackoffDuration records an error backoff delay
	BackoffDuration(id ComponentID, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) StateTransition(id ComponentID, fromState, toState ComponentState)            {}
func (noopMetrics) SyncDuration(id ComponentID, kind UpdateKind, d time.Duration, err error)     {}
func (noopMetrics) StopDuration(id ComponentID, duration time.Duration)                          {}
func (noopMetrics) SyncError(id ComponentID, errorType string)                                   {}
func (noopMetrics) Restart(id ComponentID)                                                       {}
func (noopMetrics) QueueDepth(depth int)                                                         {}
func (noopMetrics) QueueAdd(id ComponentID, delay time.Duration)                                 {}
func (noopMetrics) QueueRetry(id ComponentID)                                                    {}
func (noopMetrics) BackoffDuration(id ComponentID, duration time.Duration)                       {}

// NewNoopMetrics returns a metrics sink that discards everything
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}
