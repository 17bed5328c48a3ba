package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/overseer/internal/events"
)

// SupervisorConfig holds configuration for the supervisor
type SupervisorConfig struct {
	// MaxOutstanding is the ceiling on concurrently registered tasks.
	// Submissions beyond it fail with ErrQueueOverflow.
	MaxOutstanding int

	// DefaultTimeout is applied to units submitted with a zero timeout.
	DefaultTimeout time.Duration

	// GlobalPoolSize caps how many submitted units may run concurrently.
	// If zero, a CPU-derived default is used.
	GlobalPoolSize int
}

// DefaultSupervisorConfig returns a SupervisorConfig with reasonable defaults
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxOutstanding: 10000,
		DefaultTimeout: 180 * time.Second,
		GlobalPoolSize: DefaultPoolSizes().Global,
	}
}

// Supervisor owns the long-lived concurrency scope in which fire-and-forget
// units run. It is constructed explicitly and passed to its callers; there
// is deliberately no package-level instance. All operations other than Start
// return ErrNotStarted until Start has been called.
type Supervisor struct {
	config   SupervisorConfig
	registry *TaskRegistry
	pool     *CapacityPool
	logger   *slog.Logger
	emitter  events.EventEmitter

	// mu guards the lifecycle fields below. Registry and pool carry their
	// own synchronization.
	mu        sync.Mutex
	started   bool
	scopeCtx  context.Context
	scopeStop context.CancelCauseFunc
	wg        sync.WaitGroup
}

// NewSupervisor creates a supervisor with the given configuration. The
// emitter may be nil, in which case lifecycle events are not published.
func NewSupervisor(config SupervisorConfig, logger *slog.Logger, emitter events.EventEmitter) *Supervisor {
	if config.MaxOutstanding <= 0 {
		config.MaxOutstanding = 10000
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 180 * time.Second
	}
	if config.GlobalPoolSize <= 0 {
		config.GlobalPoolSize = DefaultPoolSizes().Global
	}

	return &Supervisor{
		config:   config,
		registry: NewTaskRegistry(config.MaxOutstanding),
		pool:     NewCapacityPool("global", config.GlobalPoolSize),
		logger:   logger.With("component", "supervisor"),
		emitter:  emitter,
	}
}

// GlobalPool exposes the global capacity pool so collaborators such as the
// batch gather engine share the same admission gate as submitted units.
func (s *Supervisor) GlobalPool() *CapacityPool {
	return s.pool
}

// Start creates the persistent concurrency scope. It is idempotent.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.scopeCtx, s.scopeStop = context.WithCancelCause(context.Background())
	s.started = true

	s.logger.Info("supervisor started",
		"max_outstanding", s.config.MaxOutstanding,
		"global_pool_size", s.config.GlobalPoolSize,
		"default_timeout", s.config.DefaultTimeout)
}

// Submit schedules a fire-and-forget unit under the given caller-chosen id
// and returns immediately. It returns false with a nil error if the id is
// already active, ErrQueueOverflow if the registry is at capacity, and
// ErrNotStarted before Start. A zero timeout applies the configured default;
// a negative timeout disables the timeout race entirely.
func (s *Supervisor) Submit(id, name string, unit UnitFunc, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return false, ErrNotStarted
	}

	if name == "" {
		name = DefaultName
	}
	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}

	unitCtx, cancel := context.WithCancelCause(s.scopeCtx)
	rec := &TaskRecord{
		ID:     id,
		Name:   name,
		Status: StatusRunning,
		cancel: cancel,
	}

	ok, err := s.registry.Insert(rec)
	if err != nil {
		cancel(nil)
		return false, err
	}
	if !ok {
		cancel(nil)
		s.logger.Debug("duplicate task id ignored",
			"task_id", id,
			"task_name", name)
		return false, nil
	}

	s.wg.Add(1)
	go s.runUnit(unitCtx, rec, unit, timeout)

	s.logger.Debug("task submitted",
		"task_id", id,
		"task_name", name,
		"timeout", timeout,
		"outstanding", s.registry.Len())
	return true, nil
}

// Cancel triggers cooperative cancellation of the unit registered under id,
// reporting whether such a unit was found. It does not block waiting for the
// unit to actually stop.
func (s *Supervisor) Cancel(id string) (bool, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return false, ErrNotStarted
	}

	found := s.registry.Cancel(id)
	if found {
		s.logger.Debug("task cancellation requested", "task_id", id)
	}
	return found, nil
}

// Status returns a snapshot of active task ids mapped to whether each is
// still running. Terminal outcomes are published as lifecycle events rather
// than retained here.
func (s *Supervisor) Status() (map[string]bool, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil, ErrNotStarted
	}
	return s.registry.Snapshot(), nil
}

// Shutdown cancels every outstanding unit, waits for the scope to drain, and
// marks the supervisor as not started. It is idempotent and safe to call
// even if Start was never invoked.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	outstanding := s.registry.Len()
	s.registry.CancelAll()
	s.scopeStop(ErrCancelled)
	s.mu.Unlock()

	s.logger.Info("supervisor shutting down", "outstanding", outstanding)
	s.wg.Wait()
	s.logger.Info("supervisor shutdown completed")
}

// runUnit is the cancellable, timed, capacity-gated wrapper every submitted
// unit executes inside.
func (s *Supervisor) runUnit(ctx context.Context, rec *TaskRecord, unit UnitFunc, timeout time.Duration) {
	defer s.wg.Done()
	start := time.Now()

	// Admission through the global pool so submitted units and batch work
	// compete for the same capacity.
	if err := s.pool.Acquire(ctx); err != nil {
		s.finish(ctx, rec, nil, err, start)
		return
	}
	defer s.pool.Release()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, timeout, ErrTimeout)
		defer cancel()
	}

	result, err := runRecovered(runCtx, unit)
	s.finish(runCtx, rec, result, err, start)
}

// finish records the unit's terminal outcome, removes its record from the
// registry, and publishes a lifecycle event. Errors from the unit's own body
// are contained here and never propagate past the wrapper.
func (s *Supervisor) finish(ctx context.Context, rec *TaskRecord, result any, err error, start time.Time) {
	status := classify(ctx, err)

	var recErr error
	switch status {
	case StatusTimeout:
		recErr = ErrTimeout
	case StatusCancelled:
		recErr = ErrCancelled
	case StatusFailed:
		recErr = err
	}
	if status != StatusCompleted {
		result = nil
	}

	s.registry.Finish(rec.ID, status, result, recErr)
	duration := time.Since(start)

	logger := s.logger.With(
		"task_id", rec.ID,
		"task_name", rec.Name,
		"status", string(status),
		"duration", duration,
	)
	switch status {
	case StatusCompleted:
		logger.Info("task completed")
	case StatusFailed:
		logger.Error("task execution failed", "error", recErr)
	default:
		logger.Info("task finished without completing", "error", recErr)
	}

	if s.emitter != nil {
		event := events.NewTaskLifecycleEvent(rec.ID, rec.Name, string(status), errText(recErr), duration)
		// The scope context may already be cancelled during shutdown;
		// event delivery should still happen.
		if emitErr := s.emitter.EmitEvent(context.Background(), event); emitErr != nil {
			logger.Error("failed to emit lifecycle event", "error", emitErr)
		}
	}
}
