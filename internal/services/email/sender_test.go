// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"testing"

	"codeberg.org/oliverandrich/authnotify/internal/config"
	"codeberg.org/oliverandrich/authnotify/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		TLS:      true,
	}
}

func TestNewSMTPSender(t *testing.T) {
	sender, err := email.NewSMTPSender(validSMTPConfig())

	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", sender.Host())
}

func TestNewSMTPSender_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := email.NewSMTPSender(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewSMTPSender_Variants(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SMTPConfig
	}{
		{"implicit tls", config.SMTPConfig{Host: "smtp.example.com", Port: 465, TLS: true}},
		{"no tls", config.SMTPConfig{Host: "localhost", Port: 1025}},
		{"no auth", config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "only-user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := email.NewSMTPSender(&tt.cfg)

			require.NoError(t, err)
			assert.NotNil(t, sender)
		})
	}
}

func TestMessage_FluentSetters(t *testing.T) {
	msg := &email.Message{Template: "welcome"}

	msg.SetTo("user@example.com").
		SetFrom("team@example.com", "Team").
		SetSubject("Hello")

	assert.Equal(t, "user@example.com", msg.To)
	assert.Equal(t, email.Address{Address: "team@example.com", Name: "Team"}, msg.From)
	assert.Equal(t, "Hello", msg.Subject)
	assert.Equal(t, "welcome", msg.Template)
}
