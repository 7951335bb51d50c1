// Package main is the entry point for the Pulse demo task worker.
//
// The worker consumes the Redis task queue and runs the demo tasks:
// email delivery, image processing, report generation, data sync, a
// multi-step workflow, and a task that fails on purpose. Every task
// runs in its own transaction, linked to the enqueuing trace through
// the traceparent carried on the task.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pulsemetric/pulse/domain/scheduler"
	"github.com/pulsemetric/pulse/domain/tasks"
	"github.com/pulsemetric/pulse/domain/tracing"
	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/internal/worker"
	"github.com/pulsemetric/pulse/pkg/logger"
)

func main() {
	// Load .env if present (for local development)
	_ = godotenv.Load(".env")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		fx.Supply(tracing.ServiceName("pulse-demo-worker")),
		tracing.WorkerModule,
		queue.Module,
		worker.Module,

		// Task handlers
		tasks.Module,

		// Periodic queue maintenance (retry promotion, stale recovery)
		scheduler.Module,
	).Run()
}
