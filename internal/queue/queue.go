// Package queue provides a Redis-backed task queue.
//
// It follows the same operational pattern as the job tables it replaces:
// - At-least-once delivery (BRPOPLPUSH into a processing list)
// - Exponential backoff retries via a delayed sorted set
// - Stale claim recovery
// - Queue statistics
//
// Producers that enqueue inside an active transaction get the trace context
// propagated through the task envelope, so worker transactions join the
// producer's trace.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// Result status values
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrResultTimeout is returned by WaitResult when the task does not finish
// within the given timeout.
var ErrResultTimeout = errors.New("queue: timed out waiting for result")

// Task is the envelope stored on the queue.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Args        json.RawMessage `json:"args,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempt     int             `json:"attempt"`
	Traceparent string          `json:"traceparent,omitempty"`

	// raw is the exact list payload; LREM needs it byte-for-byte.
	raw string
}

// UnmarshalArgs decodes the task arguments into dest.
func (t *Task) UnmarshalArgs(dest any) error {
	if len(t.Args) == 0 {
		return nil
	}
	return json.Unmarshal(t.Args, dest)
}

// Result is the terminal state of a task, kept for ResultTTL.
type Result struct {
	TaskID     string          `json:"task_id"`
	TaskName   string          `json:"task_name"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempt    int             `json:"attempt"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Config contains configuration for a task queue
type Config struct {
	// Name is the key prefix shared by all queue structures (default: "pulse:tasks")
	Name string
	// ResultTTL is how long task results stay readable (default: 1h)
	ResultTTL time.Duration
}

// Queue provides task queue operations on Redis.
// BRPOPLPUSH into a processing list keeps claimed tasks recoverable when a
// worker dies mid-task.
type Queue struct {
	rdb    *redis.Client
	config Config
	log    *slog.Logger
}

// NewQueue creates a new task queue with the given configuration
func NewQueue(rdb *redis.Client, config Config, log *slog.Logger) *Queue {
	// Apply defaults
	if config.Name == "" {
		config.Name = "pulse:tasks"
	}
	if config.ResultTTL == 0 {
		config.ResultTTL = time.Hour
	}

	return &Queue{
		rdb:    rdb,
		config: config,
		log:    log.With(logger.Scope("queue")),
	}
}

func (q *Queue) pendingKey() string    { return q.config.Name + ":pending" }
func (q *Queue) processingKey() string { return q.config.Name + ":processing" }
func (q *Queue) claimsKey() string     { return q.config.Name + ":claims" }
func (q *Queue) delayedKey() string    { return q.config.Name + ":delayed" }
func (q *Queue) counterKey(status string) string {
	return q.config.Name + ":stats:" + status
}
func (q *Queue) resultKey(id string) string {
	return q.config.Name + ":result:" + id
}
func (q *Queue) resultWaitKey(id string) string {
	return q.config.Name + ":result:" + id + ":wait"
}

// Enqueue puts a task on the pending list and returns its envelope.
// When the context carries an active transaction, the enqueue is recorded as
// a queue.redis span and the trace context travels with the envelope.
func (q *Queue) Enqueue(ctx context.Context, name string, args any) (*Task, error) {
	ctx, span := apm.StartSpan(ctx, "enqueue "+name, "queue.redis")
	defer span.End()

	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			apm.CaptureError(ctx, err)
			return nil, fmt.Errorf("marshal task args: %w", err)
		}
		raw = b
	}

	t := &Task{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       raw,
		EnqueuedAt: time.Now().UTC(),
	}
	if tc := apm.CurrentTraceContext(ctx); tc.Valid() {
		t.Traceparent = tc.Traceparent()
	}

	span.AddLabels(
		apm.String("task_name", name),
		apm.String("task_id", t.ID),
	)

	payload, err := json.Marshal(t)
	if err != nil {
		apm.CaptureError(ctx, err)
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		apm.CaptureError(ctx, err)
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}

	q.log.Debug("task enqueued",
		slog.String("task_name", name),
		slog.String("task_id", t.ID))

	return t, nil
}

// Dequeue claims the next pending task, blocking up to timeout.
// Returns (nil, nil) when the timeout passes with nothing to do.
//
// The claimed payload moves atomically to the processing list so a crashed
// worker never loses it; RecoverStale re-queues such leftovers.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.pendingKey(), q.processingKey(), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	t := &Task{}
	if err := json.Unmarshal([]byte(raw), t); err != nil {
		// Drop payloads we cannot decode instead of wedging the consumer.
		q.rdb.LRem(ctx, q.processingKey(), 1, raw)
		q.log.Warn("discarding undecodable task payload", logger.Error(err))
		return nil, nil
	}
	t.raw = raw

	if err := q.rdb.HSet(ctx, q.claimsKey(), t.ID, time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		q.log.Warn("recording task claim failed",
			slog.String("task_id", t.ID),
			logger.Error(err))
	}

	return t, nil
}

// Complete releases a claimed task and stores its successful result.
func (q *Queue) Complete(ctx context.Context, t *Task, output any) error {
	if err := q.release(ctx, t); err != nil {
		return err
	}

	res := &Result{
		TaskID:     t.ID,
		TaskName:   t.Name,
		Status:     StatusCompleted,
		Attempt:    t.Attempt,
		FinishedAt: time.Now().UTC(),
	}
	if output != nil {
		b, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("marshal task output: %w", err)
		}
		res.Output = b
	}

	if err := q.storeResult(ctx, res); err != nil {
		return err
	}
	return q.rdb.Incr(ctx, q.counterKey(StatusCompleted)).Err()
}

// Fail releases a claimed task and stores its failed result. Use Retry
// instead while attempts remain.
func (q *Queue) Fail(ctx context.Context, t *Task, taskErr string) error {
	if err := q.release(ctx, t); err != nil {
		return err
	}

	res := &Result{
		TaskID:     t.ID,
		TaskName:   t.Name,
		Status:     StatusFailed,
		Error:      truncateError(taskErr),
		Attempt:    t.Attempt,
		FinishedAt: time.Now().UTC(),
	}
	if err := q.storeResult(ctx, res); err != nil {
		return err
	}
	return q.rdb.Incr(ctx, q.counterKey(StatusFailed)).Err()
}

// Retry releases a claimed task and schedules the next attempt after delay.
// The stored envelope carries the incremented attempt count.
func (q *Queue) Retry(ctx context.Context, t *Task, delay time.Duration) error {
	if err := q.release(ctx, t); err != nil {
		return err
	}

	next := *t
	next.Attempt = t.Attempt + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal retry task: %w", err)
	}

	readyAt := time.Now().Add(delay)
	err = q.rdb.ZAdd(ctx, q.delayedKey(), &redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	q.log.Debug("task scheduled for retry",
		slog.String("task_id", t.ID),
		slog.Int("attempt", next.Attempt),
		slog.Duration("delay", delay))

	return nil
}

// PromoteDue moves delayed tasks whose time has come back onto the pending
// list. Returns the number of tasks promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("promote due tasks: %w", err)
	}

	promoted := 0
	for _, member := range members {
		// ZRem guards against a concurrent promoter taking the same member.
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return promoted, fmt.Errorf("promote due tasks: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.pendingKey(), member).Err(); err != nil {
			return promoted, fmt.Errorf("promote due tasks: %w", err)
		}
		promoted++
	}

	return promoted, nil
}

// RecoverStale re-queues tasks whose claim is older than olderThan.
// This can happen when a worker dies while processing.
// Returns the number of tasks recovered.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("recover stale tasks: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, raw := range entries {
		t := &Task{}
		if err := json.Unmarshal([]byte(raw), t); err != nil {
			q.rdb.LRem(ctx, q.processingKey(), 1, raw)
			q.log.Warn("discarding undecodable processing payload", logger.Error(err))
			continue
		}

		claimedAt, ok := q.claimTime(ctx, t.ID)
		if !ok {
			// No claim record: start the clock so the next sweep can decide.
			q.rdb.HSet(ctx, q.claimsKey(), t.ID, now.Format(time.RFC3339Nano))
			continue
		}
		if now.Sub(claimedAt) < olderThan {
			continue
		}

		removed, err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Result()
		if err != nil {
			return recovered, fmt.Errorf("recover stale tasks: %w", err)
		}
		if removed == 0 {
			continue
		}
		q.rdb.HDel(ctx, q.claimsKey(), t.ID)
		if err := q.rdb.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
			return recovered, fmt.Errorf("recover stale tasks: %w", err)
		}
		recovered++
	}

	if recovered > 0 {
		q.log.Warn("recovered stale tasks",
			slog.Int("count", recovered),
			slog.Duration("older_than", olderThan))
	}

	return recovered, nil
}

// WaitResult blocks until the task's result is stored, or the timeout passes.
func (q *Queue) WaitResult(ctx context.Context, taskID string, timeout time.Duration) (*Result, error) {
	// Fast path: the task may already be done.
	raw, err := q.rdb.Get(ctx, q.resultKey(taskID)).Result()
	if err == nil {
		return decodeResult(raw)
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("read result: %w", err)
	}

	vals, err := q.rdb.BLPop(ctx, timeout, q.resultWaitKey(taskID)).Result()
	if err == redis.Nil {
		return nil, ErrResultTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("wait for result: %w", err)
	}
	return decodeResult(vals[1])
}

// GetResult returns the stored result, or nil if the task has not finished
// (or the result already expired).
func (q *Queue) GetResult(ctx context.Context, taskID string) (*Result, error) {
	raw, err := q.rdb.Get(ctx, q.resultKey(taskID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return decodeResult(raw)
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	processing := pipe.LLen(ctx, q.processingKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	completed := pipe.Get(ctx, q.counterKey(StatusCompleted))
	failed := pipe.Get(ctx, q.counterKey(StatusFailed))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get stats failed: %w", err)
	}

	stats := &Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
	}
	stats.Completed, _ = completed.Int64()
	stats.Failed, _ = failed.Int64()

	return stats, nil
}

// Ping verifies the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// release drops the processing entry and its claim record.
func (q *Queue) release(ctx context.Context, t *Task) error {
	pipe := q.rdb.Pipeline()
	pipe.LRem(ctx, q.processingKey(), 1, t.raw)
	pipe.HDel(ctx, q.claimsKey(), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release task %s: %w", t.ID, err)
	}
	return nil
}

func (q *Queue) storeResult(ctx context.Context, res *Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pipe := q.rdb.Pipeline()
	pipe.Set(ctx, q.resultKey(res.TaskID), payload, q.config.ResultTTL)
	pipe.LPush(ctx, q.resultWaitKey(res.TaskID), payload)
	pipe.Expire(ctx, q.resultWaitKey(res.TaskID), q.config.ResultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (q *Queue) claimTime(ctx context.Context, taskID string) (time.Time, bool) {
	raw, err := q.rdb.HGet(ctx, q.claimsKey(), taskID).Result()
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func decodeResult(raw string) (*Result, error) {
	res := &Result{}
	if err := json.Unmarshal([]byte(raw), res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

// truncateError truncates an error message to 500 characters
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
