package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NewSupervisor creates a supervisor with the given options applied
func NewSupervisor(opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		signals:        make(map[ComponentID]chan struct{}),
		statuses:       make(map[ComponentID]*componentStatus),
		resyncInterval: 30 * time.Second,
		backOffPeriod:  5 * time.Second,
		retryQueue:     NewRetryQueue(),
		metrics:        NewNoopMetrics(),
		log:            slog.Default(),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.retryQueueConsumer()

	return s
}

// Update submits a component update
func (s *Supervisor) Update(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.RequestedAt.IsZero() {
		update.RequestedAt = time.Now()
	}

	status, exists := s.statuses[update.ID]
	if !exists {
		status = &componentStatus{}
		s.statuses[update.ID] = status
	}

	// Done components cannot be updated
	if status.IsDone() {
		s.log.Debug("component already done, ignoring update", "component", update.ID)
		return
	}

	if update.Kind == KindStop {
		// Stop requests often arrive without a config (Shutdown, CLI
		// stops); reuse the config the component was started with so
		// the syncer still knows what to stop
		if update.Config == nil {
			if status.pending != nil && status.pending.Config != nil {
				update.Config = status.pending.Config
			} else if status.active != nil {
				update.Config = status.active.Config
			}
		}
		s.handleStopRequest(update.ID, status, update.StopOptions)
	}

	status.pending = &update

	signalCh, exists := s.signals[update.ID]
	if !exists {
		// Buffered channel (size 1) so signalling never blocks
		signalCh = make(chan struct{}, 1)
		s.signals[update.ID] = signalCh

		s.wg.Add(1)
		go s.componentWorker(update.ID, signalCh)
	}

	select {
	case signalCh <- struct{}{}:
	default:
		// Worker already signalled
	}
}

// handleStopRequest records a stop request, caller holds s.mu
func (s *Supervisor) handleStopRequest(id ComponentID, status *componentStatus, opts *StopOptions) {
	alreadyStopping := status.IsStopping()

	if status.stoppingAt.IsZero() {
		status.stoppingAt = time.Now()
	}

	if opts != nil && opts.GracePeriodSecs != nil {
		gracePeriod := *opts.GracePeriodSecs

		// Grace period can only shrink, never grow
		if status.gracePeriod == 0 || gracePeriod < status.gracePeriod {
			status.gracePeriod = gracePeriod

			if !alreadyStopping && status.cancelFn != nil {
				s.log.Debug("cancelling component context for stop", "component", id)
				status.cancelFn()
			}
		}
	} else {
		if status.gracePeriod == 0 {
			status.gracePeriod = 10
		}
	}

	if !alreadyStopping && status.cancelFn != nil {
		s.log.Debug("cancelling component context for stop", "component", id)
		status.cancelFn()
	}
}

// retryQueueConsumer drains the retry queue and signals component workers
func (s *Supervisor) retryQueueConsumer() {
	defer s.wg.Done()
	defer s.log.Debug("retry queue consumer stopped")

	s.log.Debug("retry queue consumer started")

	// Ticker guards against missed notifications for delayed items
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCtx.Done():
			return

		case <-s.retryQueue.Wait():
			s.drainRetryQueue()

		case <-ticker.C:
			s.drainRetryQueue()
		}
	}
}

// drainRetryQueue dequeues all due items and signals their workers
func (s *Supervisor) drainRetryQueue() {
	for {
		id, ok := s.retryQueue.Dequeue()
		if !ok {
			break
		}

		s.metrics.QueueRetry(id)
		s.metrics.QueueDepth(s.retryQueue.Len())

		s.mu.Lock()
		status, exists := s.statuses[id]
		if !exists {
			s.mu.Unlock()
			s.log.Debug("retry queue item no longer tracked", "component", id)
			continue
		}

		signalCh, chanExists := s.signals[id]
		if !chanExists {
			s.mu.Unlock()
			s.log.Debug("retry queue item has no worker", "component", id)
			continue
		}

		// With no pending update, synthesize a resync for the active config
		if status.pending == nil {
			var config interface{}
			if status.active != nil {
				config = status.active.Config
			}

			status.pending = &Update{
				ID:          id,
				Kind:        KindResync,
				RequestedAt: time.Now(),
				Config:      config,
			}
		}

		s.mu.Unlock()

		select {
		case signalCh <- struct{}{}:
		default:
		}
	}
}

// componentWorker processes updates for a single component
func (s *Supervisor) componentWorker(id ComponentID, signalCh <-chan struct{}) {
	defer s.wg.Done()
	defer s.log.Debug("component worker stopped", "component", id)

	s.log.Debug("component worker started", "component", id)

	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case <-signalCh:
			if !s.handleSignal(id) {
				// Component done, exit worker
				return
			}
		}
	}
}

// handleSignal processes the pending update for a component.
// Returns false when the worker should exit.
func (s *Supervisor) handleSignal(id ComponentID) bool {
	s.mu.Lock()

	status, exists := s.statuses[id]
	if !exists {
		s.mu.Unlock()
		return false
	}

	if status.IsDone() {
		s.mu.Unlock()
		return false
	}

	if status.working {
		s.mu.Unlock()
		return true
	}

	if status.pending == nil {
		s.mu.Unlock()
		return true
	}

	status.active = status.pending
	status.pending = nil
	status.working = true

	if status.ctx == nil || status.ctx.Err() == context.Canceled {
		status.ctx, status.cancelFn = context.WithCancel(s.shutdownCtx)
	}

	update := *status.active
	state := status.State()

	s.mu.Unlock()

	// Sync runs outside the lock
	err := s.executeSync(id, status, update, state)

	s.completeWork(id, err)

	return true
}

// executeSync dispatches to the syncer hook matching the current state
func (s *Supervisor) executeSync(id ComponentID, status *componentStatus, update Update, state ComponentState) error {
	if s.syncer == nil {
		return fmt.Errorf("no syncer configured")
	}

	switch state {
	case StateStarting, StateRunning:
		s.mu.Lock()
		isStopping := status.IsStopping()
		s.mu.Unlock()

		if isStopping {
			return s.syncStopping(id, status, update)
		}
		return s.syncComponent(id, status, update)

	case StateStopping:
		return s.syncStopping(id, status, update)

	case StateStopped:
		return s.syncStopped(id, status, update)

	case StateDone:
		return nil

	default:
		return fmt.Errorf("unknown state: %v", state)
	}
}

func (s *Supervisor) syncComponent(id ComponentID, status *componentStatus, update Update) error {
	start := time.Now()

	terminal, err := s.syncer.SyncComponent(status.ctx, update.Kind, update.Config)

	duration := time.Since(start)
	s.log.Debug("component sync completed",
		"component", id, "duration", duration, "terminal", terminal, "err", err)

	s.metrics.SyncDuration(id, update.Kind, duration, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		s.metrics.SyncError(id, "sync_error")
	} else {
		status.errorCount = 0
		status.lastError = nil
		status.syncedAt = time.Now()

		if status.startedAt.IsZero() {
			status.startedAt = time.Now()
		}
	}

	if terminal {
		s.log.Info("component reached terminal state, shutting down", "component", id)
		status.stoppingAt = time.Now()
		if status.gracePeriod == 0 {
			status.gracePeriod = 10
		}
	}

	newState := status.State()
	if newState != oldState {
		s.metrics.StateTransition(id, oldState, newState)
	}

	return err
}

func (s *Supervisor) syncStopping(id ComponentID, status *componentStatus, update Update) error {
	start := time.Now()

	var statusFunc StatusFunc
	if update.StopOptions != nil {
		statusFunc = update.StopOptions.StatusFunc
	}

	gracePeriod := status.gracePeriod
	err := s.syncer.SyncStopping(status.ctx, update.Config, &gracePeriod, statusFunc)

	duration := time.Since(start)
	s.log.Debug("component stop completed", "component", id, "duration", duration, "err", err)

	s.metrics.StopDuration(id, duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		s.metrics.SyncError(id, "stop_error")
	} else {
		status.stoppedAt = time.Now()
		status.errorCount = 0
		status.lastError = nil

		if update.StopOptions != nil && update.StopOptions.DoneCh != nil {
			close(update.StopOptions.DoneCh)
		}

		// Queue the cleanup phase immediately
		status.pending = &Update{
			ID:          id,
			Kind:        KindResync,
			RequestedAt: time.Now(),
			Config:      update.Config,
		}
	}

	newState := status.State()
	if newState != oldState {
		s.metrics.StateTransition(id, oldState, newState)
	}

	return err
}

func (s *Supervisor) syncStopped(id ComponentID, status *componentStatus, update Update) error {
	start := time.Now()

	err := s.syncer.SyncStopped(status.ctx, update.Config)

	duration := time.Since(start)
	s.log.Debug("component cleanup completed", "component", id, "duration", duration, "err", err)

	s.mu.Lock()
	defer s.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		s.metrics.SyncError(id, "cleanup_error")
	} else {
		status.doneAt = time.Now()
		status.errorCount = 0
		status.lastError = nil
	}

	newState := status.State()
	if newState != oldState {
		s.metrics.StateTransition(id, oldState, newState)
	}

	return err
}

// completeWork clears the working flag and schedules the next resync
func (s *Supervisor) completeWork(id ComponentID, syncErr error) {
	s.mu.Lock()

	status, exists := s.statuses[id]
	if !exists {
		s.mu.Unlock()
		return
	}

	status.working = false

	if status.IsDone() {
		s.mu.Unlock()
		return
	}

	var delay time.Duration
	phaseTransition := false

	if syncErr != nil {
		status.consecutiveFails++

		isTransient := syncErr == context.Canceled || syncErr == context.DeadlineExceeded

		if isTransient {
			delay = Jitter(1*time.Second, 0.5)
			s.log.Debug("transient sync error, retrying",
				"component", id, "delay", delay, "err", syncErr)
		} else {
			delay = Backoff(status.consecutiveFails, 1*time.Second, s.backOffPeriod)
			s.log.Warn("sync error, backing off",
				"component", id, "attempt", status.consecutiveFails, "delay", delay, "err", syncErr)
		}
	} else {
		status.consecutiveFails = 0

		if status.State() == StateStopped {
			// Stop just completed, run the cleanup phase next
			phaseTransition = true
		}

		if phaseTransition {
			delay = 0
		} else {
			delay = Jitter(s.resyncInterval, 0.1)
		}
	}

	s.retryQueue.Enqueue(id, delay)
	s.metrics.QueueAdd(id, delay)
	s.metrics.QueueDepth(s.retryQueue.Len())

	if syncErr != nil {
		s.metrics.BackoffDuration(id, delay)
	}

	hasPending := status.pending != nil
	signalCh := s.signals[id]

	s.mu.Unlock()

	if hasPending {
		select {
		case signalCh <- struct{}{}:
		default:
		}
	}
}

// RecordRestart notes that a component's process was relaunched. Called
// by the syncer, which is the only layer that observes process exits.
func (s *Supervisor) RecordRestart(id ComponentID) {
	s.mu.Lock()
	status, exists := s.statuses[id]
	if exists {
		status.restartCount++
	}
	s.mu.Unlock()

	if exists {
		s.metrics.Restart(id)
	}
}

// ComponentStatus returns the current status of a component
func (s *Supervisor) ComponentStatus(id ComponentID) (*Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, exists := s.statuses[id]
	if !exists {
		return nil, false
	}

	snap := status.snapshot()
	return &snap, true
}

// IsStopped checks if a component's process has exited
func (s *Supervisor) IsStopped(id ComponentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, exists := s.statuses[id]
	if !exists {
		return false
	}

	return status.IsStopped()
}

// IsDone checks if a component's cleanup completed
func (s *Supervisor) IsDone(id ComponentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, exists := s.statuses[id]
	if !exists {
		return false
	}

	return status.IsDone()
}

// Shutdown stops all components and waits for workers to exit
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.log.Info("supervisor shutting down")

	s.shutdownCancel()

	s.mu.Lock()
	ids := make([]ComponentID, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Update(Update{
			ID:   id,
			Kind: KindStop,
		})
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("supervisor shutdown complete")
		return nil
	case <-ctx.Done():
		s.log.Warn("supervisor shutdown timed out")
		return ctx.Err()
	}
}

// SyncKnownComponents reconciles desired vs tracked components.
// Components not in desiredIDs are stopped; done orphans are removed.
// Returns the status of all remaining components.
func (s *Supervisor) SyncKnownComponents(desiredIDs []ComponentID) map[ComponentID]Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[ComponentID]bool)
	for _, id := range desiredIDs {
		desired[id] = true
	}

	result := make(map[ComponentID]Status)

	for id, status := range s.statuses {
		_, known := desired[id]
		orphan := !known

		if status.IsDone() {
			if orphan {
				s.log.Debug("removing done orphan", "component", id)
				delete(s.statuses, id)
				delete(s.signals, id)
			}
			continue
		}

		if orphan && !status.IsStopping() {
			s.log.Info("stopping orphan component", "component", id)
			s.handleStopRequest(id, status, nil)
		}

		result[id] = status.snapshot()
	}

	return result
}

// HealthReport summarizes supervisor and component health
type HealthReport struct {
	TotalComponents    int
	RunningComponents  int
	StoppingComponents int
	FailedComponents   int
	QueueDepth         int
	Components         map[ComponentID]ComponentHealth
}

// ComponentHealth is the health summary for one component
type ComponentHealth struct {
	State        ComponentState
	Healthy      bool
	Uptime       time.Duration
	LastSync     time.Time
	ErrorCount   int
	RestartCount int
}

// Health returns the current health of the supervisor and its components
func (s *Supervisor) Health() HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := HealthReport{
		Components: make(map[ComponentID]ComponentHealth),
	}

	for id, status := range s.statuses {
		report.TotalComponents++

		state := status.State()
		switch state {
		case StateRunning:
			report.RunningComponents++
		case StateStopping:
			report.StoppingComponents++
		}

		if status.errorCount >= 5 {
			report.FailedComponents++
		}

		var uptime time.Duration
		if !status.startedAt.IsZero() {
			if status.doneAt.IsZero() {
				uptime = time.Since(status.startedAt)
			} else {
				uptime = status.doneAt.Sub(status.startedAt)
			}
		}

		report.Components[id] = ComponentHealth{
			State:        state,
			Healthy:      status.Healthy(),
			Uptime:       uptime,
			LastSync:     status.syncedAt,
			ErrorCount:   status.errorCount,
			RestartCount: status.restartCount,
		}
	}

	report.QueueDepth = s.retryQueue.Len()

	return report
}
