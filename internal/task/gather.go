package task

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// GatherFunc is the homogeneous unit a batch gather applies to each element.
type GatherFunc func(ctx context.Context, arg any) (any, error)

// GatherOptions controls the timeout and pacing behavior of one Gather call.
type GatherOptions struct {
	// PerUnitTimeout bounds each element independently. Zero disables it.
	PerUnitTimeout time.Duration

	// TotalTimeout bounds the whole batch. On expiry all still-running
	// elements are cancelled and their slots left nil. Zero disables it.
	TotalTimeout time.Duration

	// StartJitterMax delays each element's start by a uniform random
	// duration in [0, StartJitterMax] to avoid a thundering herd against
	// downstream resources. Zero disables it.
	StartJitterMax time.Duration
}

// BatchGatherEngine runs a list of homogeneous units concurrently,
// collecting positional results while tolerating individual failures. Every
// element is admitted through the shared global capacity pool so a large
// batch competes fairly with other submitted work.
type BatchGatherEngine struct {
	pool    *CapacityPool
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewBatchGatherEngine creates a gather engine gated by the given pool. The
// limiter is optional; when non-nil every element waits for a token before
// starting, pacing the batch against downstream rate limits.
func NewBatchGatherEngine(pool *CapacityPool, limiter *rate.Limiter, logger *slog.Logger) *BatchGatherEngine {
	return &BatchGatherEngine{
		pool:    pool,
		limiter: limiter,
		logger:  logger.With("component", "batch_gather"),
	}
}

// Gather applies fn to every element of args concurrently and returns a
// result slice of the same length, index-stable regardless of completion
// order. An element that fails, panics, or times out leaves a nil slot and
// never aborts its siblings. Only the caller's own context cancellation
// propagates as a non-nil error; batch-internal cancellation (including the
// total-timeout race) is contained.
func (e *BatchGatherEngine) Gather(
	ctx context.Context,
	fn GatherFunc,
	args []any,
	opts GatherOptions,
) ([]any, error) {
	results := make([]any, len(args))
	if len(args) == 0 {
		return results, nil
	}

	batchCtx := ctx
	if opts.TotalTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeoutCause(ctx, opts.TotalTimeout, ErrTimeout)
		defer cancel()
	}

	start := time.Now()
	var g errgroup.Group
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			// Workers always return nil: element outcomes are recorded in
			// their slots, and sibling isolation is the whole point.
			results[i] = e.runElement(batchCtx, fn, arg, i, opts)
			return nil
		})
	}
	_ = g.Wait()

	// A genuine outer cancellation must propagate to the caller even though
	// batch-internal cancellations were swallowed above.
	if err := ctx.Err(); err != nil {
		e.logger.Debug("gather cancelled from outside",
			"batch_size", len(args),
			"duration", time.Since(start))
		return results, err
	}

	e.logger.Debug("gather completed",
		"batch_size", len(args),
		"duration", time.Since(start))
	return results, nil
}

// runElement executes one batch element under jitter, pacing, capacity
// admission, and its independent timeout race. It returns the element's
// value, or nil when the element failed or was cut off.
func (e *BatchGatherEngine) runElement(
	ctx context.Context,
	fn GatherFunc,
	arg any,
	index int,
	opts GatherOptions,
) any {
	if opts.StartJitterMax > 0 {
		jitter := time.Duration(rand.Int63n(int64(opts.StartJitterMax) + 1))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return nil
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	if err := e.pool.Acquire(ctx); err != nil {
		e.logger.Debug("batch element not admitted",
			"index", index,
			"error", err)
		return nil
	}
	defer e.pool.Release()

	unitCtx := ctx
	if opts.PerUnitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeoutCause(ctx, opts.PerUnitTimeout, ErrTimeout)
		defer cancel()
	}

	value, err := runRecovered(unitCtx, func(c context.Context) (any, error) {
		return fn(c, arg)
	})
	if err != nil {
		e.logger.Debug("batch element failed",
			"index", index,
			"status", string(classify(unitCtx, err)),
			"error", err)
		return nil
	}
	if unitCtx.Err() != nil {
		// The element's deadline fired even though a value came back;
		// the slot stays nil so timeout is indistinguishable from the
		// element never finishing.
		e.logger.Debug("batch element timed out",
			"index", index,
			"error", context.Cause(unitCtx))
		return nil
	}
	return value
}
