package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskLifecycleEvent is emitted when a supervised unit of work reaches a
// terminal state. It carries the terminal outcome that the supervisor's
// boolean status snapshot discards, so observers can record or react to
// completions, failures, cancellations, and timeouts.
type TaskLifecycleEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// TaskID is the caller-supplied id of the unit that finished
	TaskID string `json:"task_id"`

	// TaskName is the display name the unit was submitted with
	TaskName string `json:"task_name"`

	// Status is the terminal status the unit reached
	Status string `json:"status"`

	// Error holds the unit's error text, empty on success
	Error string `json:"error,omitempty"`

	// Duration is how long the unit ran before reaching a terminal state
	Duration time.Duration `json:"duration"`

	// OccurredAt is the timestamp when the terminal transition happened
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskLifecycleEvent creates a lifecycle event for a finished unit.
func NewTaskLifecycleEvent(
	taskID, taskName, status, errText string,
	duration time.Duration,
) *TaskLifecycleEvent {
	return &TaskLifecycleEvent{
		ID:         uuid.New(),
		TaskID:     taskID,
		TaskName:   taskName,
		Status:     status,
		Error:      errText,
		Duration:   duration,
		OccurredAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskLifecycleEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the supervisor to publish events without direct knowledge of
// handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskLifecycleEvent) error
}
