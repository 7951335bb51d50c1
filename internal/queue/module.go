package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/logger"
)

var Module = fx.Module("queue",
	fx.Provide(
		NewRedisClient,
		NewTaskQueue,
	),
)

// NewRedisClient creates the shared Redis client
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*redis.Client, error) {
	log = log.With(logger.Scope("redis"))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("redis connected",
		slog.String("addr", cfg.Redis.Addr),
		slog.Int("db", cfg.Redis.DB),
	)

	// Register lifecycle hooks
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing redis client")
			return rdb.Close()
		},
	})

	return rdb, nil
}

// NewTaskQueue creates the task queue on the shared Redis client
func NewTaskQueue(rdb *redis.Client, cfg *config.Config, log *slog.Logger) *Queue {
	return NewQueue(rdb, Config{
		Name:      cfg.Worker.QueueName,
		ResultTTL: cfg.Worker.ResultTTL,
	}, log)
}
