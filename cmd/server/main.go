// Package main is the entry point for the Pulse demo API server.
//
// The server exposes a set of endpoints whose only job is to produce
// interesting traces: simulated pipelines, slow queries, intentional
// errors, parallel upstream calls, and a concurrent analytics fan-out.
// Point PULSE_SERVER_URL at a collector and generate traffic.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/pulsemetric/pulse/domain/analytics"
	"github.com/pulsemetric/pulse/domain/health"
	"github.com/pulsemetric/pulse/domain/processing"
	"github.com/pulsemetric/pulse/domain/tracing"
	"github.com/pulsemetric/pulse/domain/upstream"
	"github.com/pulsemetric/pulse/domain/users"
	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/server"
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
		fx.Supply(tracing.ServiceName("pulse-demo-api")),
		tracing.Module,
		server.Module,

		// Domain modules
		health.Module,
		users.Module,
		processing.Module,
		upstream.Module,
		analytics.Module,
	).Run()
}
