package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/pulsemetric/pulse/internal/config"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// MailgunSender delivers email through the Mailgun API.
type MailgunSender struct {
	cfg    *config.EmailConfig
	log    *slog.Logger
	client *mailgun.MailgunImpl
}

// NewMailgunSender creates a Mailgun-backed sender. Returns nil when
// Mailgun is not configured; callers fall back to the simulated sender.
func NewMailgunSender(cfg *config.EmailConfig, log *slog.Logger) *MailgunSender {
	if !cfg.IsConfigured() {
		return nil
	}
	return &MailgunSender{
		cfg:    cfg,
		log:    log.With(logger.Scope("email.mailgun")),
		client: mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey),
	}
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	message := s.client.NewMessage(s.cfg.From(), subject, body, to)

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	started := time.Now()
	_, messageID, err := s.client.Send(sendCtx, message)
	if err != nil {
		return nil, fmt.Errorf("mailgun send: %w", err)
	}

	s.log.Info("email sent",
		slog.String("to", to),
		slog.String("message_id", messageID),
	)
	return &SendResult{
		MessageID:    messageID,
		DeliveryTime: time.Since(started),
	}, nil
}
