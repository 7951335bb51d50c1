// Package worker runs queue consumers that execute registered task handlers.
//
// Every dequeued task runs inside its own transaction named task.<name>, so
// concurrent consumers never bleed spans into each other. When the envelope
// carries a trace context the transaction continues the producer's trace.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// maxRetryDelay caps the quadratic retry backoff.
const maxRetryDelay = 2 * time.Minute

// Config contains configuration for the worker pool
type Config struct {
	// Concurrency is the number of consumer goroutines (default: 4)
	Concurrency int
	// MaxAttempts is the number of times a task may run before it is
	// marked failed (default: 3)
	MaxAttempts int
	// TaskTimeout is the per-task execution deadline (default: 5m)
	TaskTimeout time.Duration
	// RetryBackoff is the base delay for retries; attempt n waits
	// RetryBackoff * n^2, capped at maxRetryDelay (default: 5s)
	RetryBackoff time.Duration
	// StaleAfter is the claim age after which startup recovery re-queues
	// tasks left behind by a dead worker (default: 10m)
	StaleAfter time.Duration
	// PollTimeout bounds each blocking dequeue so consumers notice shutdown
	// (default: 2s)
	PollTimeout time.Duration
}

// Pool is a set of queue consumers sharing one handler registry.
// It follows the polling worker pattern:
// - Blocking dequeue with a bounded poll timeout
// - Graceful shutdown waiting for in-flight tasks
// - Stale task recovery on startup
// - Metrics tracking
type Pool struct {
	queue    *queue.Queue
	registry *Registry
	tracer   *apm.Tracer
	config   Config
	log      *slog.Logger

	stopCh  chan struct{}
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup

	// Metrics
	processedCount int64
	successCount   int64
	failureCount   int64
	retryCount     int64
	metricsMu      sync.RWMutex
}

// NewPool creates a worker pool
func NewPool(q *queue.Queue, registry *Registry, tracer *apm.Tracer, config Config, log *slog.Logger) *Pool {
	// Apply defaults
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.TaskTimeout == 0 {
		config.TaskTimeout = 5 * time.Minute
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 5 * time.Second
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 10 * time.Minute
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 2 * time.Second
	}

	return &Pool{
		queue:    q,
		registry: registry,
		tracer:   tracer,
		config:   config,
		log:      log.With(logger.Scope("worker")),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the consumer goroutines
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	// Re-queue anything a previous worker left behind.
	if recovered, err := p.queue.RecoverStale(ctx, p.config.StaleAfter); err != nil {
		p.log.Warn("startup stale recovery failed", logger.Error(err))
	} else if recovered > 0 {
		p.log.Info("recovered tasks on startup", slog.Int("count", recovered))
	}

	p.log.Info("worker pool starting",
		slog.Int("concurrency", p.config.Concurrency),
		slog.Int("max_attempts", p.config.MaxAttempts),
		slog.Duration("task_timeout", p.config.TaskTimeout),
		slog.Any("tasks", p.registry.Names()),
	)

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.runConsumer(i)
	}

	return nil
}

// Stop gracefully stops the pool, waiting for in-flight tasks to finish
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("worker pool stop timeout, abandoning in-flight tasks")
	}

	return nil
}

// runConsumer is a single consumer loop
func (p *Pool) runConsumer(id int) {
	defer p.wg.Done()
	log := p.log.With(slog.Int("consumer", id))

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		t, err := p.queue.Dequeue(context.Background(), p.config.PollTimeout)
		if err != nil {
			log.Warn("dequeue failed", logger.Error(err))
			select {
			case <-p.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if t == nil {
			continue
		}

		p.runTask(t, log)
	}
}

// runTask executes one task inside its own transaction
func (p *Pool) runTask(t *queue.Task, log *slog.Logger) {
	opts := apm.TransactionOptions{}
	if t.Traceparent != "" {
		if tc, err := apm.ParseTraceparent(t.Traceparent); err == nil {
			opts.TraceContext = tc
		}
	}

	tx := p.tracer.StartTransactionOptions("task."+t.Name, "task", opts)
	tx.AddLabels(
		apm.String("task_name", t.Name),
		apm.String("task_id", t.ID),
		apm.Int("attempt", t.Attempt),
	)

	ctx := apm.ContextWithTransaction(context.Background(), tx)
	ctx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
	defer cancel()

	log.Info("task starting",
		slog.String("task_name", t.Name),
		slog.String("task_id", t.ID),
		slog.Int("attempt", t.Attempt))

	started := time.Now()
	output, err := p.execute(ctx, t)

	if err != nil {
		apm.CaptureError(ctx, err)
		tx.SetResult("failure")
		tx.End()
		p.handleFailure(t, err, log)
		return
	}

	tx.SetResult("success")
	tx.End()

	bctx, bcancel := bookkeepingContext()
	defer bcancel()
	if qerr := p.queue.Complete(bctx, t, output); qerr != nil {
		log.Warn("storing task result failed", logger.Error(qerr))
	}

	p.incrSuccess()
	metricTasksProcessed.WithLabelValues(t.Name, queue.StatusCompleted).Inc()
	log.Info("task completed",
		slog.String("task_name", t.Name),
		slog.String("task_id", t.ID),
		slog.Duration("duration", time.Since(started)))
}

// execute runs the handler, converting panics into errors so a bad task
// never kills the consumer.
func (p *Pool) execute(ctx context.Context, t *queue.Task) (output any, err error) {
	handler, ok := p.registry.Lookup(t.Name)
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", t.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			if e, isErr := r.(error); isErr {
				err = fmt.Errorf("task panicked: %w", e)
			} else {
				err = apm.PanicError{Value: r}
			}
		}
	}()

	return handler(ctx, t)
}

// handleFailure retries with backoff while attempts remain, otherwise marks
// the task failed.
func (p *Pool) handleFailure(t *queue.Task, taskErr error, log *slog.Logger) {
	bctx, bcancel := bookkeepingContext()
	defer bcancel()

	attempt := t.Attempt + 1
	if attempt < p.config.MaxAttempts {
		delay := retryDelay(p.config.RetryBackoff, attempt)
		if qerr := p.queue.Retry(bctx, t, delay); qerr != nil {
			log.Warn("scheduling retry failed", logger.Error(qerr))
		}
		p.incrRetry()
		metricTaskRetries.WithLabelValues(t.Name).Inc()
		log.Warn("task failed, retry scheduled",
			slog.String("task_name", t.Name),
			slog.String("task_id", t.ID),
			slog.Int("attempt", t.Attempt),
			slog.Duration("delay", delay),
			logger.Error(taskErr))
		return
	}

	if qerr := p.queue.Fail(bctx, t, taskErr.Error()); qerr != nil {
		log.Warn("storing task failure failed", logger.Error(qerr))
	}
	p.incrFailure()
	metricTasksProcessed.WithLabelValues(t.Name, queue.StatusFailed).Inc()
	log.Error("task permanently failed",
		slog.String("task_name", t.Name),
		slog.String("task_id", t.ID),
		slog.Int("attempts", attempt),
		logger.Error(taskErr))
}

// retryDelay computes the quadratic backoff: base * attempt^2, capped.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(attempt*attempt)
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// bookkeepingContext is used for queue updates after the task context may
// already be canceled or past its deadline.
func bookkeepingContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// IsRunning returns whether the pool is currently running
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Metrics returns current pool metrics
func (p *Pool) Metrics() Metrics {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	return Metrics{
		Processed: p.processedCount,
		Succeeded: p.successCount,
		Failed:    p.failureCount,
		Retried:   p.retryCount,
	}
}

func (p *Pool) incrSuccess() {
	p.metricsMu.Lock()
	p.processedCount++
	p.successCount++
	p.metricsMu.Unlock()
}

func (p *Pool) incrFailure() {
	p.metricsMu.Lock()
	p.processedCount++
	p.failureCount++
	p.metricsMu.Unlock()
}

func (p *Pool) incrRetry() {
	p.metricsMu.Lock()
	p.processedCount++
	p.retryCount++
	p.metricsMu.Unlock()
}

// Metrics contains pool metrics
type Metrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}
