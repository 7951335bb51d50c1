package tasks

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/internal/worker"
)

// Module provides the demo task set and registers it with the worker.
var Module = fx.Module("tasks",
	fx.Provide(
		NewSender, // Mailgun when configured, otherwise simulated
		NewTasks,
	),
	fx.Invoke(func(t *Tasks, r *worker.Registry) {
		t.Register(r)
	}),
)

// NewSender picks the email delivery backend. Mailgun when configured,
// the simulated sender otherwise, so the demo runs without credentials.
func NewSender(cfg *config.Config, log *slog.Logger) Sender {
	if s := NewMailgunSender(&cfg.Email, log); s != nil {
		log.Info("using Mailgun sender", slog.String("domain", cfg.Email.MailgunDomain))
		return s
	}
	log.Info("using simulated email sender (Mailgun not configured)")
	return NewSimulatedSender(log)
}
