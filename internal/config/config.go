package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8000"`
	WebPort       int    `env:"WEB_PORT" envDefault:"8001"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Pulse agent settings
	APM APMConfig

	// Redis task queue settings
	Redis RedisConfig

	// Worker settings
	Worker WorkerConfig

	// Email sending (the email task simulates SMTP when disabled)
	Email EmailConfig

	// Upstream services fetched by the parallel-requests endpoint
	Upstream UpstreamConfig

	// Batch settings for the sales report job
	Batch BatchConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds connection settings for the task queue broker
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// WorkerConfig holds task worker settings
type WorkerConfig struct {
	// Concurrency is the number of consumer goroutines
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// QueueName prefixes every Redis key the queue touches
	QueueName string `env:"TASK_QUEUE_NAME" envDefault:"pulse:tasks"`

	// MaxAttempts bounds attempts per task, the first one included
	MaxAttempts int `env:"TASK_MAX_ATTEMPTS" envDefault:"3"`

	// TaskTimeout is the per-task execution deadline
	TaskTimeout time.Duration `env:"TASK_TIME_LIMIT" envDefault:"5m"`

	// RetryBackoff is the base delay before a retry; it doubles per attempt
	RetryBackoff time.Duration `env:"TASK_RETRY_BACKOFF" envDefault:"5s"`

	// StaleAfter is how long a claimed task may sit unfinished before
	// recovery re-queues it
	StaleAfter time.Duration `env:"TASK_STALE_AFTER" envDefault:"10m"`

	// ResultTTL is how long task results stay readable
	ResultTTL time.Duration `env:"TASK_RESULT_TTL" envDefault:"1h"`
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	// Enabled determines if real email sending is enabled
	Enabled bool `env:"EMAIL_ENABLED" envDefault:"false"`
	// MailgunDomain is the Mailgun domain
	MailgunDomain string `env:"MAILGUN_DOMAIN" envDefault:""`
	// MailgunAPIKey is the Mailgun API key
	MailgunAPIKey string `env:"MAILGUN_API_KEY" envDefault:""`
	// FromEmail is the default from email address
	FromEmail string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@example.com"`
	// FromName is the default from name
	FromName string `env:"EMAIL_FROM_NAME" envDefault:"Pulse"`
}

// IsConfigured returns true if Mailgun is configured
func (e *EmailConfig) IsConfigured() bool {
	return e.Enabled && e.MailgunDomain != "" && e.MailgunAPIKey != ""
}

// From returns the formatted default sender address
func (e *EmailConfig) From() string {
	if e.FromName == "" {
		return e.FromEmail
	}
	return fmt.Sprintf("%s <%s>", e.FromName, e.FromEmail)
}

// BatchConfig holds settings for the batch reporting job
type BatchConfig struct {
	// DBPath is the SQLite file behind the job; ":memory:" works too
	DBPath string `env:"BATCH_DB_PATH" envDefault:"batch_demo.db"`

	// Size is how many items the processing step runs through
	Size int `env:"BATCH_SIZE" envDefault:"15"`
}

// UpstreamConfig holds settings for outbound demo requests
type UpstreamConfig struct {
	// BaseURL is the API the parallel-requests endpoint fans out to
	BaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.github.com"`

	// Repos are the repositories whose stats get fetched in parallel
	Repos []string `env:"UPSTREAM_REPOS" envDefault:"golang/go,python/cpython,nodejs/node" envSeparator:","`

	// Timeout bounds each outbound request
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Bool("apm_collector", cfg.APM.Enabled()),
	)

	return cfg, nil
}

// IsProduction returns true for production-like environments
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
