package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/overseer/internal/api/shared"
	"github.com/phrazzld/overseer/internal/task"
)

// JobFactory builds a runnable unit from raw request parameters. Factories
// are registered per job kind at startup because arbitrary callables cannot
// cross the HTTP boundary.
type JobFactory func(params json.RawMessage) (task.UnitFunc, error)

// TaskHandler exposes the supervisor's submit/cancel/status operations and
// the batch gather engine over HTTP.
type TaskHandler struct {
	supervisor *task.Supervisor
	gatherer   *task.BatchGatherEngine
	jobs       map[string]JobFactory
	gatherOpts task.GatherOptions
	logger     *slog.Logger
}

// NewTaskHandler creates a handler backed by the given supervisor and gather
// engine. jobs maps kind names to factories; gatherOpts supplies the default
// jitter applied to batch runs.
func NewTaskHandler(
	supervisor *task.Supervisor,
	gatherer *task.BatchGatherEngine,
	jobs map[string]JobFactory,
	gatherOpts task.GatherOptions,
	logger *slog.Logger,
) *TaskHandler {
	return &TaskHandler{
		supervisor: supervisor,
		gatherer:   gatherer,
		jobs:       jobs,
		gatherOpts: gatherOpts,
		logger:     logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /api/tasks, scheduling a fire-and-forget unit and
// returning without waiting for it to complete.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	factory, ok := h.jobs[req.Kind]
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Unknown job kind %q", req.Kind))
		return
	}

	unit, err := factory(req.Params)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			"Invalid job parameters", err)
		return
	}

	name := req.Name
	if name == "" {
		name = req.Kind
	}

	accepted, err := h.supervisor.Submit(
		req.ID,
		name,
		unit,
		time.Duration(req.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusAccepted
	if !accepted {
		// Duplicate id: no new task was created.
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, SubmitTaskResponse{
		TaskID:   req.ID,
		Accepted: accepted,
	})
}

// CancelTask handles DELETE /api/tasks/{id}, requesting cooperative
// cancellation of the identified task.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task id is required")
		return
	}

	cancelled, err := h.supervisor.Cancel(id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusOK
	if !cancelled {
		status = http.StatusNotFound
	}
	shared.RespondWithJSON(w, r, status, CancelTaskResponse{
		TaskID:    id,
		Cancelled: cancelled,
	})
}

// ListTasks handles GET /api/tasks, returning the registry snapshot.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.supervisor.Status()
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err),
			GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

// GatherBatch handles POST /api/batches, running a homogeneous batch and
// returning positional results once the batch resolves. Failed, timed-out,
// or cancelled elements are null slots.
func (h *TaskHandler) GatherBatch(w http.ResponseWriter, r *http.Request) {
	var req GatherRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	factory, ok := h.jobs[req.Kind]
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Unknown job kind %q", req.Kind))
		return
	}

	args := make([]any, len(req.Params))
	for i, p := range req.Params {
		args[i] = p
	}

	opts := h.gatherOpts
	opts.PerUnitTimeout = time.Duration(req.PerUnitTimeoutMs) * time.Millisecond
	opts.TotalTimeout = time.Duration(req.TotalTimeoutMs) * time.Millisecond

	results, err := h.gatherer.Gather(r.Context(), func(ctx context.Context, arg any) (any, error) {
		unit, ferr := factory(arg.(json.RawMessage))
		if ferr != nil {
			return nil, fmt.Errorf("invalid batch element parameters: %w", ferr)
		}
		return unit(ctx)
	}, args, opts)
	if err != nil {
		// Only the caller's own cancellation propagates out of Gather.
		shared.RespondWithErrorAndLog(w, r, http.StatusRequestTimeout,
			"Request cancelled before batch resolved", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, GatherResponse{Results: results})
}
