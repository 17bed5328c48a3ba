package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// OffloadConfig holds the capacities of the two offload pools. Zero values
// fall back to CPU-derived defaults.
type OffloadConfig struct {
	ThreadPoolSize  int
	ProcessPoolSize int
}

// SyncOffloadExecutor runs blocking, non-cooperative work outside the
// supervisor's coordination path. Each category of work is admitted through
// its own capacity pool: the thread pool for ordinary blocking calls and the
// much smaller process pool for callables that spawn OS processes.
//
// Timeouts and cancellation detach the *wait*, not the work: once the caller
// gives up, the underlying goroutine — and for process offload the spawned
// OS process — may keep running until it finishes on its own. Passing
// cancellable=true additionally propagates a cancellation into the callable's
// context so cooperative work can stop early; this is best effort only.
type SyncOffloadExecutor struct {
	threadPool  *CapacityPool
	processPool *CapacityPool
	logger      *slog.Logger
}

// NewSyncOffloadExecutor creates an executor with pools sized per config.
func NewSyncOffloadExecutor(config OffloadConfig, logger *slog.Logger) *SyncOffloadExecutor {
	sizes := DefaultPoolSizes()
	if config.ThreadPoolSize <= 0 {
		config.ThreadPoolSize = sizes.Thread
	}
	if config.ProcessPoolSize <= 0 {
		config.ProcessPoolSize = sizes.Process
	}

	return &SyncOffloadExecutor{
		threadPool:  NewCapacityPool("thread", config.ThreadPoolSize),
		processPool: NewCapacityPool("process", config.ProcessPoolSize),
		logger:      logger.With("component", "sync_offload"),
	}
}

// ThreadPool exposes the thread-category capacity pool.
func (e *SyncOffloadExecutor) ThreadPool() *CapacityPool {
	return e.threadPool
}

// ProcessPool exposes the process-category capacity pool.
func (e *SyncOffloadExecutor) ProcessPool() *CapacityPool {
	return e.processPool
}

// RunInThread runs fn on a worker goroutine under the thread pool, waiting
// at most timeout (zero disables the bound). See the type comment for the
// detach semantics of timeout, ctx cancellation, and cancellable.
func (e *SyncOffloadExecutor) RunInThread(
	ctx context.Context,
	fn BlockingFunc,
	timeout time.Duration,
	cancellable bool,
) (any, error) {
	return e.run(ctx, e.threadPool, fn, timeout, cancellable)
}

// RunInProcess runs fn under the process pool. fn is expected to spawn and
// wait on an OS process (an os/exec wrapper); the pool is sized accordingly.
func (e *SyncOffloadExecutor) RunInProcess(
	ctx context.Context,
	fn BlockingFunc,
	timeout time.Duration,
	cancellable bool,
) (any, error) {
	return e.run(ctx, e.processPool, fn, timeout, cancellable)
}

// RunInThreads applies fn to every element of args on worker goroutines and
// returns a same-length result slice. A failed, timed-out, or cancelled
// element leaves a nil slot, is logged, and never aborts its siblings — the
// same partial-failure policy as batch gather.
func (e *SyncOffloadExecutor) RunInThreads(
	ctx context.Context,
	fn GatherFunc,
	args []any,
	timeout time.Duration,
	cancellable bool,
) []any {
	return e.runBatch(ctx, e.threadPool, fn, args, timeout, cancellable)
}

// RunInProcesses is the process-pool batch variant of RunInThreads.
func (e *SyncOffloadExecutor) RunInProcesses(
	ctx context.Context,
	fn GatherFunc,
	args []any,
	timeout time.Duration,
	cancellable bool,
) []any {
	return e.runBatch(ctx, e.processPool, fn, args, timeout, cancellable)
}

type offloadOutcome struct {
	value any
	err   error
}

func (e *SyncOffloadExecutor) run(
	ctx context.Context,
	pool *CapacityPool,
	fn BlockingFunc,
	timeout time.Duration,
	cancellable bool,
) (any, error) {
	if err := pool.Acquire(ctx); err != nil {
		return nil, err
	}

	// The work context decides what the callable itself can observe. In the
	// non-cancellable mode the callable never sees the caller give up.
	var workCtx context.Context
	var cancelWork context.CancelCauseFunc
	if cancellable {
		workCtx, cancelWork = context.WithCancelCause(ctx)
	} else {
		workCtx = context.WithoutCancel(ctx)
		cancelWork = func(error) {}
	}

	outCh := make(chan offloadOutcome, 1)
	go func() {
		// The pool slot is held for as long as the work actually runs, even
		// after the waiting caller has detached.
		defer pool.Release()
		value, err := runRecovered(workCtx, UnitFunc(fn))
		outCh <- offloadOutcome{value: value, err: err}
	}()

	waitCtx := ctx
	if timeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeoutCause(ctx, timeout, ErrTimeout)
		defer cancelWait()
	}

	select {
	case out := <-outCh:
		cancelWork(nil)
		if out.err != nil {
			e.logger.Error("offloaded call failed",
				"pool", pool.Name(),
				"error", out.err)
			return nil, fmt.Errorf("offloaded call failed: %w", out.err)
		}
		return out.value, nil

	case <-waitCtx.Done():
		cause := context.Cause(waitCtx)
		cancelWork(cause)
		if errors.Is(cause, ErrTimeout) {
			e.logger.Warn("offload wait timed out, detaching",
				"pool", pool.Name(),
				"timeout", timeout,
				"cancellable", cancellable)
			return nil, fmt.Errorf("offload wait exceeded %s: %w", timeout, ErrTimeout)
		}
		e.logger.Warn("offload wait cancelled, detaching",
			"pool", pool.Name(),
			"cancellable", cancellable)
		return nil, ctx.Err()
	}
}

func (e *SyncOffloadExecutor) runBatch(
	ctx context.Context,
	pool *CapacityPool,
	fn GatherFunc,
	args []any,
	timeout time.Duration,
	cancellable bool,
) []any {
	results := make([]any, len(args))
	if len(args) == 0 {
		return results
	}

	var g errgroup.Group
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			value, err := e.run(ctx, pool, func(c context.Context) (any, error) {
				return fn(c, arg)
			}, timeout, cancellable)
			if err != nil {
				e.logger.Debug("offload batch element failed",
					"pool", pool.Name(),
					"index", i,
					"error", err)
				return nil
			}
			results[i] = value
			return nil
		})
	}
	_ = g.Wait()
	return results
}
