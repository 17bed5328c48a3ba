package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(id string) (*TaskRecord, context.Context) {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &TaskRecord{
		ID:     id,
		Name:   DefaultName,
		Status: StatusRunning,
		cancel: cancel,
	}, ctx
}

func TestTaskRegistry_Insert(t *testing.T) {
	t.Parallel()

	t.Run("duplicate id is a no-op", func(t *testing.T) {
		t.Parallel()

		registry := NewTaskRegistry(10)
		rec, _ := newTestRecord("task-1")

		ok, err := registry.Insert(rec)
		require.NoError(t, err)
		require.True(t, ok)

		dup, _ := newTestRecord("task-1")
		ok, err = registry.Insert(dup)
		assert.NoError(t, err, "duplicate id is signaled by a false return, not an error")
		assert.False(t, ok)
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("overflow at capacity", func(t *testing.T) {
		t.Parallel()

		registry := NewTaskRegistry(2)
		for _, id := range []string{"a", "b"} {
			rec, _ := newTestRecord(id)
			ok, err := registry.Insert(rec)
			require.NoError(t, err)
			require.True(t, ok)
		}

		rec, _ := newTestRecord("c")
		ok, err := registry.Insert(rec)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrQueueOverflow)
	})
}

func TestTaskRegistry_Finish(t *testing.T) {
	t.Parallel()

	registry := NewTaskRegistry(10)
	rec, _ := newTestRecord("task-1")
	_, err := registry.Insert(rec)
	require.NoError(t, err)

	finished := registry.Finish("task-1", StatusCompleted, "value", nil)
	require.NotNil(t, finished)
	assert.Equal(t, StatusCompleted, finished.Status)
	assert.Equal(t, "value", finished.Result)
	assert.Equal(t, 0, registry.Len(), "record is removed the moment it reaches a terminal state")

	assert.Nil(t, registry.Finish("task-1", StatusCompleted, nil, nil),
		"finishing an unknown id returns nil")
}

func TestTaskRegistry_Cancel(t *testing.T) {
	t.Parallel()

	registry := NewTaskRegistry(10)
	rec, ctx := newTestRecord("task-1")
	_, err := registry.Insert(rec)
	require.NoError(t, err)

	assert.False(t, registry.Cancel("missing"), "cancelling an unknown id returns false")

	require.True(t, registry.Cancel("task-1"))
	assert.ErrorIs(t, context.Cause(ctx), ErrCancelled)
}

func TestTaskRegistry_CancelAll(t *testing.T) {
	t.Parallel()

	registry := NewTaskRegistry(10)
	contexts := make([]context.Context, 0, 3)
	for _, id := range []string{"a", "b", "c"} {
		rec, ctx := newTestRecord(id)
		_, err := registry.Insert(rec)
		require.NoError(t, err)
		contexts = append(contexts, ctx)
	}

	registry.CancelAll()

	for _, ctx := range contexts {
		assert.True(t, errors.Is(context.Cause(ctx), ErrCancelled))
	}
}

func TestTaskRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	registry := NewTaskRegistry(10)
	for _, id := range []string{"a", "b"} {
		rec, _ := newTestRecord(id)
		_, err := registry.Insert(rec)
		require.NoError(t, err)
	}

	snapshot := registry.Snapshot()
	assert.Equal(t, map[string]bool{"a": true, "b": true}, snapshot)

	// Mutating the snapshot must not affect the registry.
	delete(snapshot, "a")
	assert.Equal(t, 2, registry.Len())
}
