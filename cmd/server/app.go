package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/phrazzld/overseer/internal/api"
	"github.com/phrazzld/overseer/internal/config"
	"github.com/phrazzld/overseer/internal/events"
	"github.com/phrazzld/overseer/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger

	// Task handling
	supervisor *task.Supervisor
	offloader  *task.SyncOffloadExecutor
	gatherer   *task.BatchGatherEngine

	// Event system
	eventEmitter events.EventEmitter

	// Job kinds exposed over the HTTP surface
	jobs map[string]api.JobFactory
}

// lifecycleLogHandler logs every task lifecycle event so terminal outcomes
// remain observable after the record leaves the registry.
type lifecycleLogHandler struct {
	logger *slog.Logger
}

// HandleEvent records the terminal outcome of a finished task.
func (h *lifecycleLogHandler) HandleEvent(ctx context.Context, event *events.TaskLifecycleEvent) error {
	h.logger.Info("task reached terminal state",
		"task_id", event.TaskID,
		"task_name", event.TaskName,
		"status", event.Status,
		"error", event.Error,
		"duration", event.Duration)
	return nil
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts the configuration and logger that must be
// established before application initialization.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	// Initialize the event emitter and register the lifecycle log handler.
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(&lifecycleLogHandler{
		logger: logger.With("component", "lifecycle_log_handler"),
	})
	app.eventEmitter = emitter

	// Initialize the supervisor that owns the persistent concurrency scope.
	app.supervisor = task.NewSupervisor(task.SupervisorConfig{
		MaxOutstanding: cfg.Supervisor.MaxOutstanding,
		DefaultTimeout: time.Duration(cfg.Supervisor.DefaultTimeoutSeconds) * time.Second,
		GlobalPoolSize: cfg.Supervisor.GlobalPoolSize,
	}, logger, emitter)
	app.supervisor.Start()

	// Initialize the blocking-work executor with its own capacity pools.
	app.offloader = task.NewSyncOffloadExecutor(task.OffloadConfig{
		ThreadPoolSize:  cfg.Offload.ThreadPoolSize,
		ProcessPoolSize: cfg.Offload.ProcessPoolSize,
	}, logger)

	// The gather engine shares the supervisor's global pool so batches
	// compete fairly with submitted work.
	var limiter *rate.Limiter
	if cfg.Batch.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Batch.RateLimitPerSecond), 1)
	}
	app.gatherer = task.NewBatchGatherEngine(app.supervisor.GlobalPool(), limiter, logger)

	app.jobs = builtinJobs(app.offloader)

	logger.Info("Application initialized successfully")
	return app, nil
}

// sleepJobParams is the payload of the built-in "sleep" job kind.
type sleepJobParams struct {
	DurationMs int    `json:"duration_ms"`
	Result     string `json:"result"`
}

// commandJobParams is the payload of the built-in "command" job kind.
type commandJobParams struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// builtinJobs returns the job kinds the HTTP surface exposes. "sleep" is a
// cooperative unit useful for smoke tests; "command" offloads an OS process
// through the executor's process pool.
func builtinJobs(offloader *task.SyncOffloadExecutor) map[string]api.JobFactory {
	return map[string]api.JobFactory{
		"sleep": func(params json.RawMessage) (task.UnitFunc, error) {
			var p sleepJobParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, fmt.Errorf("invalid sleep params: %w", err)
				}
			}
			if p.DurationMs < 0 {
				return nil, fmt.Errorf("invalid sleep params: duration_ms must not be negative")
			}
			return func(ctx context.Context) (any, error) {
				select {
				case <-time.After(time.Duration(p.DurationMs) * time.Millisecond):
					return p.Result, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}, nil
		},

		"command": func(params json.RawMessage) (task.UnitFunc, error) {
			var p commandJobParams
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid command params: %w", err)
			}
			if p.Command == "" {
				return nil, fmt.Errorf("invalid command params: command is required")
			}
			return func(ctx context.Context) (any, error) {
				return offloader.RunInProcess(ctx, runCommand(p.Command, p.Args), 0, true)
			}, nil
		},
	}
}

// batchJitter returns the configured default start jitter for batch runs.
func (app *application) batchJitter() time.Duration {
	return time.Duration(app.config.Batch.StartJitterMaxMs) * time.Millisecond
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.supervisor != nil {
		app.supervisor.Shutdown()
	}

	app.logger.Info("Application shutdown completed")
}
