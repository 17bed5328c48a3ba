package api

import "encoding/json"

// Common request/response structures

// SubmitTaskRequest defines the payload for submitting a fire-and-forget task.
type SubmitTaskRequest struct {
	// ID is the caller-chosen identifier used for later cancellation and
	// status polling. It must be unique among currently active tasks.
	ID string `json:"id"   validate:"required,min=1,max=256"`

	// Kind selects a job factory registered at startup.
	Kind string `json:"kind" validate:"required"`

	// Name is an optional display name recorded for observability.
	Name string `json:"name,omitempty" validate:"max=256"`

	// Params is the job-kind-specific payload.
	Params json.RawMessage `json:"params,omitempty"`

	// TimeoutSeconds bounds the unit's execution. Zero applies the
	// supervisor's default timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"gte=0"`
}

// SubmitTaskResponse defines the response for a task submission.
type SubmitTaskResponse struct {
	// TaskID echoes the submitted id.
	TaskID string `json:"task_id"`

	// Accepted is false when the id was already active (duplicate
	// submissions are a no-op, not an error).
	Accepted bool `json:"accepted"`
}

// CancelTaskResponse defines the response for a cancellation request.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// TaskStatusResponse defines the response for the status snapshot endpoint.
type TaskStatusResponse struct {
	// Tasks maps each active task id to whether it is still running.
	Tasks map[string]bool `json:"tasks"`

	// Count is the number of active tasks at snapshot time.
	Count int `json:"count"`
}

// GatherRequest defines the payload for running a homogeneous batch.
type GatherRequest struct {
	// Kind selects a job factory registered at startup; it is applied to
	// every element of Params.
	Kind string `json:"kind" validate:"required"`

	// Params holds one payload per batch element.
	Params []json.RawMessage `json:"params" validate:"required,min=1"`

	// PerUnitTimeoutMs bounds each element independently. Zero disables it.
	PerUnitTimeoutMs int `json:"per_unit_timeout_ms,omitempty" validate:"gte=0"`

	// TotalTimeoutMs bounds the whole batch. Zero disables it.
	TotalTimeoutMs int `json:"total_timeout_ms,omitempty" validate:"gte=0"`
}

// GatherResponse defines the response for a batch run. Results has the same
// length and order as the request's Params; elements that failed, timed out,
// or were cancelled are null.
type GatherResponse struct {
	Results []any `json:"results"`
}
