// Package main is the producer side of the task demo: it queues tasks
// for the Pulse worker and waits for their results. Run it with no
// arguments to queue the full demo set, or `run <task>` for one task.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pulsemetric/pulse/domain/tracing"
	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
)

var (
	redisAddr   string
	waitTimeout time.Duration
	noWait      bool
)

var rootCmd = &cobra.Command{
	Use:   "task-runner",
	Short: "Queue demo tasks for the Pulse worker",
	Long: `task-runner is the producer side of the Pulse task demo.

Without arguments it queues the full demo set (email, image processing,
report generation, data sync, a multi-step workflow, and a task that
fails on purpose) and waits for each result. The enqueues run inside a
client transaction, so every task trace links back to this run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.close()
		return r.runAll(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:       "run <task>",
	Short:     "Queue one demo task and wait for its result",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"email", "image", "report", "sync", "workflow", "fail"},
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.close()
		return r.runOne(cmd.Context(), args[0])
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		defer r.close()

		stats, err := r.queue.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("read queue stats: %w", err)
		}
		fmt.Printf("pending:    %d\n", stats.Pending)
		fmt.Printf("processing: %d\n", stats.Processing)
		fmt.Printf("delayed:    %d\n", stats.Delayed)
		fmt.Printf("completed:  %d\n", stats.Completed)
		fmt.Printf("failed:     %d\n", stats.Failed)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (default from REDIS_ADDR)")
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "timeout", 30*time.Second, "how long to wait per task result")
	rootCmd.PersistentFlags().BoolVar(&noWait, "no-wait", false, "queue tasks without waiting for results")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runner holds everything a command needs to talk to the queue.
type runner struct {
	cfg    *config.Config
	tracer *apm.Tracer
	queue  *queue.Queue
	rdb    *redis.Client
}

func newRunner() (*runner, error) {
	// Load .env if present (for local development)
	_ = godotenv.Load(".env")

	// Demo output goes to stdout; keep the logger quiet unless something breaks.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.NewConfig(log)
	if err != nil {
		return nil, err
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}

	tracer, err := tracing.NewTracer("pulse-task-runner", cfg, log)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Addr, err)
	}

	q := queue.NewQueue(rdb, queue.Config{
		Name:      cfg.Worker.QueueName,
		ResultTTL: cfg.Worker.ResultTTL,
	}, log)

	return &runner{cfg: cfg, tracer: tracer, queue: q, rdb: rdb}, nil
}

// close flushes pending trace data and releases the Redis client.
func (r *runner) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracer.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: tracer close: %v\n", err)
	}
	_ = r.rdb.Close()
}
