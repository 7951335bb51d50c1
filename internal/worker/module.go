package worker

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

var Module = fx.Module("worker",
	fx.Provide(
		NewRegistry,
		NewPoolFromConfig,
	),
	fx.Invoke(StartPool),
)

// NewPoolFromConfig creates the pool from app configuration
func NewPoolFromConfig(q *queue.Queue, registry *Registry, tracer *apm.Tracer, cfg *config.Config, log *slog.Logger) *Pool {
	return NewPool(q, registry, tracer, Config{
		Concurrency:  cfg.Worker.Concurrency,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		TaskTimeout:  cfg.Worker.TaskTimeout,
		RetryBackoff: cfg.Worker.RetryBackoff,
		StaleAfter:   cfg.Worker.StaleAfter,
	}, log)
}

// StartPool ties the pool to the fx lifecycle. Handler registration happens
// during construction, so every handler is in place before consumers start.
func StartPool(lc fx.Lifecycle, p *Pool) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return p.Stop(ctx)
		},
	})
}
