// Package main implements the entry point for the Overseer server, which
// exposes the asynchronous task supervisor over an HTTP control surface.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/phrazzld/overseer/internal/config"
	"github.com/phrazzld/overseer/internal/platform/logger"
)

// main is the entry point for the overseer server. It initializes
// configuration, sets up logging, wires the supervisor and executors, and
// starts the HTTP server.
func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up application components.
// Returns the initialized application and any initialization error.
func initializeApp() (*application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up structured logging using the configured log level
	appLogger := logger.Setup(cfg.Server)

	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"max_outstanding", cfg.Supervisor.MaxOutstanding,
		"default_timeout_seconds", cfg.Supervisor.DefaultTimeoutSeconds)

	app, err := newApplication(cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	return app, nil
}
