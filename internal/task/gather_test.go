package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestGatherer(poolSize int, limiter *rate.Limiter) *BatchGatherEngine {
	return NewBatchGatherEngine(NewCapacityPool("gather-test", poolSize), limiter, newTestLogger())
}

// echoAfter sleeps for the duration carried by each element and then echoes
// its label, respecting cancellation.
type timedArg struct {
	delay time.Duration
	label string
}

func echoAfter(ctx context.Context, arg any) (any, error) {
	ta := arg.(timedArg)
	select {
	case <-time.After(ta.delay):
		return ta.label, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestBatchGatherEngine_IndexStableResults(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	// The slowest element finishes last but its result still lands at its
	// own index.
	args := []any{
		timedArg{delay: 50 * time.Millisecond, label: "slow"},
		timedArg{delay: time.Millisecond, label: "fast"},
		timedArg{delay: 20 * time.Millisecond, label: "medium"},
	}
	results, err := engine.Gather(context.Background(), echoAfter, args, GatherOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{"slow", "fast", "medium"}, results)
}

func TestBatchGatherEngine_EmptyArgs(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)
	results, err := engine.Gather(context.Background(), echoAfter, nil, GatherOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBatchGatherEngine_PerUnitTimeout(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	args := []any{
		timedArg{delay: 10 * time.Millisecond, label: "a"},
		timedArg{delay: time.Second, label: "b"},
	}
	results, err := engine.Gather(context.Background(), echoAfter, args, GatherOptions{
		PerUnitTimeout: 250 * time.Millisecond,
	})
	require.NoError(t, err, "an element timing out must not fail the batch")
	assert.Equal(t, "a", results[0])
	assert.Nil(t, results[1], "timed-out element leaves a nil slot")
}

func TestBatchGatherEngine_TotalTimeout(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	args := []any{
		timedArg{delay: 500 * time.Millisecond, label: "a"},
		timedArg{delay: 500 * time.Millisecond, label: "b"},
	}
	start := time.Now()
	results, err := engine.Gather(context.Background(), echoAfter, args, GatherOptions{
		TotalTimeout: 100 * time.Millisecond,
	})
	assert.NoError(t, err, "total timeout is batch-internal and must not surface as an error")
	assert.Equal(t, []any{nil, nil}, results)
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"total timeout should cut the batch short")
}

func TestBatchGatherEngine_OuterCancellationPropagates(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	args := []any{
		timedArg{delay: 2 * time.Second, label: "a"},
		timedArg{delay: 2 * time.Second, label: "b"},
	}
	results, err := engine.Gather(ctx, echoAfter, args, GatherOptions{})
	assert.ErrorIs(t, err, context.Canceled,
		"the caller's own cancellation is the one case that surfaces")
	assert.Len(t, results, len(args))
}

func TestBatchGatherEngine_ElementFailureIsolation(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	fn := func(ctx context.Context, arg any) (any, error) {
		switch v := arg.(string); v {
		case "fail":
			return nil, errors.New("element error")
		case "panic":
			panic("element panic")
		default:
			return v, nil
		}
	}

	results, err := engine.Gather(context.Background(), fn,
		[]any{"ok-1", "fail", "panic", "ok-2"}, GatherOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{"ok-1", nil, nil, "ok-2"}, results)
}

func TestBatchGatherEngine_PoolGatesConcurrency(t *testing.T) {
	t.Parallel()

	pool := NewCapacityPool("gather-gate", 1)
	engine := NewBatchGatherEngine(pool, nil, newTestLogger())

	args := make([]any, 6)
	for i := range args {
		args[i] = timedArg{delay: 10 * time.Millisecond, label: "x"}
	}
	results, err := engine.Gather(context.Background(), echoAfter, args, GatherOptions{})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "x", r)
	}
	assert.LessOrEqual(t, pool.HighWater(), int64(1),
		"elements must not bypass capacity admission")
}

func TestBatchGatherEngine_StartJitterDelaysElements(t *testing.T) {
	t.Parallel()

	engine := newTestGatherer(8, nil)

	var started atomic.Int32
	fn := func(ctx context.Context, arg any) (any, error) {
		started.Add(1)
		return arg, nil
	}

	start := time.Now()
	results, err := engine.Gather(context.Background(), fn, []any{1, 2, 3}, GatherOptions{
		StartJitterMax: 30 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), started.Load())
	assert.Equal(t, []any{1, 2, 3}, results)
	// Jitter delays starts but the batch still completes promptly.
	assert.Less(t, time.Since(start), time.Second)
}

func TestBatchGatherEngine_RateLimiterPacesStarts(t *testing.T) {
	t.Parallel()

	// 50 elements/second with burst 1: the second and third starts must each
	// wait roughly 20ms for a token.
	limiter := rate.NewLimiter(rate.Limit(50), 1)
	engine := newTestGatherer(8, limiter)

	fn := func(ctx context.Context, arg any) (any, error) {
		return arg, nil
	}

	start := time.Now()
	results, err := engine.Gather(context.Background(), fn, []any{1, 2, 3}, GatherOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, results)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"limiter should have paced the later elements")
}
