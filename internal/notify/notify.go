// Package notify delivers operator alerts over email, webhooks or the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
)

// Sender delivers one alert message.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// Multi fans an alert out to every sender. It fails only if no sender
// delivered the message.
type Multi struct {
	senders []Sender
	log     *slog.Logger
}

func NewMulti(senders ...Sender) *Multi {
	out := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{senders: out, log: logger.Component("notify")}
}

func (m *Multi) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(m.senders) == 0 {
		return errors.New("no notification channel configured")
	}
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, recipients, subject, body); err != nil {
			m.log.ErrorContext(ctx, "failed to send notification", "channel", fmt.Sprintf("%T", s), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.senders) {
		return errors.Join(errs...)
	}
	return nil
}

// LogSender writes alerts to the structured log. Used when no real channel
// is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.Component("notify")}
}

func (s *LogSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	s.log.WarnContext(ctx, "alert", "subject", subject, "body", body, "recipients", recipients)
	return nil
}

// FromConfig builds the configured channels, falling back to the log.
func FromConfig(cfg config.NotifyConfig) Sender {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var senders []Sender
	if cfg.SMTP.Host != "" {
		senders = append(senders, NewSMTPSender(cfg.SMTP, timeout))
	}
	if cfg.Webhook.URL != "" {
		senders = append(senders, NewWebhookSender(cfg.Webhook.URL, timeout))
	}
	if len(senders) == 0 {
		return NewLogSender()
	}
	if len(senders) == 1 {
		return senders[0]
	}
	return NewMulti(senders...)
}
