package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPSender sends plain-text alert mails.
type SMTPSender struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

func NewSMTPSender(cfg config.SMTPConfig, timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, timeout: timeout}
}

func (s *SMTPSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	msg, err := buildMessage(s.cfg.From, recipients, subject, body)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, recipients []string, subject, body string) (*mail.Msg, error) {
	if len(recipients) == 0 {
		return nil, errors.New("no recipients")
	}
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
