package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// DelayedPromotionTask moves due retries from the delayed set onto the
// pending list so consumers pick them up.
type DelayedPromotionTask struct {
	queue *queue.Queue
	log   *slog.Logger
}

// NewDelayedPromotionTask creates a delayed promotion task
func NewDelayedPromotionTask(q *queue.Queue, log *slog.Logger) *DelayedPromotionTask {
	return &DelayedPromotionTask{
		queue: q,
		log:   log.With(logger.Scope("task.promote_delayed")),
	}
}

// Run promotes all delayed tasks whose retry time has passed.
func (t *DelayedPromotionTask) Run(ctx context.Context) error {
	promoted, err := t.queue.PromoteDue(ctx)
	if err != nil {
		return err
	}

	if promoted > 0 {
		t.log.Info("promoted delayed tasks", slog.Int("count", promoted))
	}
	return nil
}

// StaleRecoveryTask requeues tasks whose consumer died mid-flight.
type StaleRecoveryTask struct {
	queue     *queue.Queue
	olderThan time.Duration
	log       *slog.Logger
}

// NewStaleRecoveryTask creates a stale recovery task. olderThan is how
// long a task may sit on the processing list before it is considered
// abandoned.
func NewStaleRecoveryTask(q *queue.Queue, olderThan time.Duration, log *slog.Logger) *StaleRecoveryTask {
	return &StaleRecoveryTask{
		queue:     q,
		olderThan: olderThan,
		log:       log.With(logger.Scope("task.recover_stale")),
	}
}

// Run requeues abandoned tasks from the processing list.
func (t *StaleRecoveryTask) Run(ctx context.Context) error {
	_, err := t.queue.RecoverStale(ctx, t.olderThan)
	return err
}

// QueueStatsTask periodically logs queue depth so operators can spot
// backlog growth without scraping metrics.
type QueueStatsTask struct {
	queue *queue.Queue
	log   *slog.Logger
}

// NewQueueStatsTask creates a queue stats task
func NewQueueStatsTask(q *queue.Queue, log *slog.Logger) *QueueStatsTask {
	return &QueueStatsTask{
		queue: q,
		log:   log.With(logger.Scope("task.queue_stats")),
	}
}

// Run logs a snapshot of the queue counters.
func (t *QueueStatsTask) Run(ctx context.Context) error {
	stats, err := t.queue.GetStats(ctx)
	if err != nil {
		return err
	}

	t.log.Info("queue stats",
		slog.Int64("pending", stats.Pending),
		slog.Int64("processing", stats.Processing),
		slog.Int64("delayed", stats.Delayed),
		slog.Int64("completed", stats.Completed),
		slog.Int64("failed", stats.Failed))
	return nil
}
