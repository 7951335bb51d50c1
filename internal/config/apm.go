package config

import "time"

// APMConfig holds Pulse agent configuration.
// With no collector URL the agent still traces but exports to the log.
type APMConfig struct {
	// ServerURL is the Pulse collector base URL (e.g. http://localhost:8200).
	// Leave empty to keep traces local (log exporter).
	ServerURL string `env:"PULSE_SERVER_URL" envDefault:""`

	// SecretToken authenticates against the collector.
	SecretToken string `env:"PULSE_SECRET_TOKEN" envDefault:""`

	// SampleRate is the head sampling rate in [0, 1].
	SampleRate float64 `env:"PULSE_SAMPLE_RATE" envDefault:"1.0"`

	// FlushInterval bounds how long finished transactions wait before export.
	FlushInterval time.Duration `env:"PULSE_FLUSH_INTERVAL" envDefault:"10s"`

	// MaxQueueSize caps the in-memory report queue.
	MaxQueueSize int `env:"PULSE_MAX_QUEUE_SIZE" envDefault:"1024"`

	// MaxBatchSize caps transactions per export batch.
	MaxBatchSize int `env:"PULSE_MAX_BATCH_SIZE" envDefault:"256"`
}

// Enabled returns true when a collector URL is configured.
func (c APMConfig) Enabled() bool {
	return c.ServerURL != ""
}
