// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/oliverandrich/authnotify/internal/config"
	"github.com/wneessen/go-mail"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg *Message, body Body) error
}

// SMTPSender delivers messages via SMTP using go-mail.
type SMTPSender struct {
	host string
	opts []mail.Option
}

// NewSMTPSender creates a sender from the SMTP configuration.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	// Implicit TLS on 465, STARTTLS everywhere else
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPSender{host: cfg.Host, opts: opts}, nil
}

// Host returns the SMTP server host.
func (s *SMTPSender) Host() string {
	return s.host
}

// Send builds a multipart message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg *Message, body Body) error {
	m, err := buildMsg(msg, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.host, s.opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func buildMsg(msg *Message, body Body) (*mail.Msg, error) {
	m := mail.NewMsg()

	if msg.From.Name != "" {
		if err := m.FromFormat(msg.From.Name, msg.From.Address); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := m.From(msg.From.Address); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, body.Text)
	if body.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, body.HTML)
	}

	return m, nil
}
