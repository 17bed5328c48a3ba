package task

import (
	"context"
	"errors"
)

// Status represents the current state of a submitted unit of work.
type Status string

// Possible task status values. Transitions are monotonic: a record moves
// from StatusRunning to exactly one terminal status and never back.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// UnitFunc is a cooperative unit of work. Implementations should observe
// ctx cancellation at their suspension points; the supervisor installs a
// cancellation scope and an optional timeout race around the whole call.
type UnitFunc func(ctx context.Context) (any, error)

// BlockingFunc is a non-cooperative unit of work intended for offloading.
// The ctx is only honored when the caller requested cancellable execution;
// otherwise the function receives a context that is never cancelled.
type BlockingFunc func(ctx context.Context) (any, error)

// Common errors returned by the supervisor and executors.
var (
	// ErrNotStarted is returned when an operation is invoked before Start.
	ErrNotStarted = errors.New("supervisor not started")

	// ErrQueueOverflow is returned when the registry has reached its
	// configured maximum number of outstanding tasks.
	ErrQueueOverflow = errors.New("task registry at capacity")

	// ErrTimeout is the cancellation cause installed when a per-unit,
	// per-batch, or offload-wait deadline expires. It is distinct from
	// cooperative cancellation.
	ErrTimeout = errors.New("deadline exceeded for unit of work")

	// ErrCancelled is the cancellation cause installed when a unit is
	// cancelled cooperatively, either by Cancel(id) or by Shutdown.
	ErrCancelled = errors.New("unit of work cancelled")
)

// DefaultName is recorded for units submitted without a caller-supplied
// name. Names exist purely for observability.
const DefaultName = "anonymous"
