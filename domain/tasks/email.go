package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pulsemetric/pulse/internal/queue"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// SendEmailArgs are the arguments of the email.send task.
type SendEmailArgs struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// SendResult describes one delivery.
type SendResult struct {
	MessageID    string
	DeliveryTime time.Duration
}

// Sender delivers a prepared email. The worker ships with a simulated
// sender; Mailgun replaces it when configured.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (*SendResult, error)
}

// SendEmail prepares and delivers one email.
func (t *Tasks) SendEmail(ctx context.Context, task *queue.Task) (any, error) {
	var args SendEmailArgs
	if err := task.UnmarshalArgs(&args); err != nil {
		return nil, fmt.Errorf("decode email args: %w", err)
	}

	var body string
	err := apm.WithSpan(ctx, "email_preparation", "email", func(ctx context.Context) error {
		t.sleep(200 * time.Millisecond)
		rendered, err := renderEmailBody(args)
		if err != nil {
			return fmt.Errorf("render email body: %w", err)
		}
		body = rendered
		apm.AddLabels(ctx,
			apm.String("recipient", args.Recipient),
			apm.String("subject", args.Subject),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = apm.WithSpan(ctx, "email_sending", "email.smtp", func(ctx context.Context) error {
		result, err := t.sender.Send(ctx, args.Recipient, args.Subject, body)
		if err != nil {
			return err
		}
		apm.AddLabels(ctx,
			apm.Bool("sent", true),
			apm.Int("delivery_time_ms", int(result.DeliveryTime.Milliseconds())),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"status": "sent", "recipient": args.Recipient}, nil
}

// SimulatedSender stands in for SMTP when Mailgun is not configured. It
// takes as long as a real delivery would, and one send in ten fails so
// error tracking has something to show.
type SimulatedSender struct {
	log *slog.Logger

	sleep  func(time.Duration)
	chance func() float64
}

// NewSimulatedSender creates a simulated email sender
func NewSimulatedSender(log *slog.Logger) *SimulatedSender {
	return &SimulatedSender{
		log:    log.With(logger.Scope("email.simulated")),
		sleep:  time.Sleep,
		chance: rand.Float64,
	}
}

func (s *SimulatedSender) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	latency := time.Duration(500+rand.IntN(1000)) * time.Millisecond
	s.sleep(latency)

	if s.chance() < 0.1 {
		return nil, errors.New("send email: smtp connection error")
	}

	s.log.Info("simulated email delivered",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return &SendResult{
		MessageID:    fmt.Sprintf("<%s@simulated>", uuid.NewString()),
		DeliveryTime: latency,
	}, nil
}
