package scheduler

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// PromoteInterval is how often due delayed tasks move back to pending
	PromoteInterval time.Duration `env:"SCHEDULER_PROMOTE_INTERVAL" envDefault:"1s"`

	// StaleRecoveryInterval is how often abandoned claims are swept
	StaleRecoveryInterval time.Duration `env:"SCHEDULER_STALE_RECOVERY_INTERVAL" envDefault:"30s"`

	// StatsInterval is how often queue statistics are logged
	StatsInterval time.Duration `env:"SCHEDULER_STATS_INTERVAL" envDefault:"1m"`
}

// NewConfig creates a new Config from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse scheduler config: %w", err)
	}
	return cfg, nil
}
