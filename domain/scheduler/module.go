package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/queue"
)

// Module provides scheduled queue maintenance
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Queue     *queue.Queue
	Log       *slog.Logger
	Cfg       *Config
	AppCfg    *config.Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	promoteTask := NewDelayedPromotionTask(p.Queue, p.Log)
	if err := p.Scheduler.AddIntervalTask("promote_delayed",
		p.Cfg.PromoteInterval, promoteTask.Run); err != nil {
		p.Log.Error("failed to register delayed promotion task",
			slog.String("error", err.Error()))
	}

	staleTask := NewStaleRecoveryTask(p.Queue, p.AppCfg.Worker.StaleAfter, p.Log)
	if err := p.Scheduler.AddIntervalTask("recover_stale",
		p.Cfg.StaleRecoveryInterval, staleTask.Run); err != nil {
		p.Log.Error("failed to register stale recovery task",
			slog.String("error", err.Error()))
	}

	statsTask := NewQueueStatsTask(p.Queue, p.Log)
	if err := p.Scheduler.AddIntervalTask("queue_stats",
		p.Cfg.StatsInterval, statsTask.Run); err != nil {
		p.Log.Error("failed to register queue stats task",
			slog.String("error", err.Error()))
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
