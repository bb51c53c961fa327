// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package notifier reacts to user lifecycle events by updating the session
// or queueing templated emails.
package notifier

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/authnotify/internal/config"
	"codeberg.org/oliverandrich/authnotify/internal/events"
	"codeberg.org/oliverandrich/authnotify/internal/models"
	"codeberg.org/oliverandrich/authnotify/internal/services/email"
)

// Priority is the bus priority of every notifier handler.
const Priority = 10

// Session keys written on login.
const (
	SessionUserID = "userId"
	SessionEmail  = "email"
)

// Email templates.
const (
	TemplateWelcome = "welcome"
	TemplateReset   = "reset"
)

// SessionStore is the key-value state of the current client session.
type SessionStore interface {
	Put(ctx context.Context, key string, value any) error
	Flush(ctx context.Context) error
}

// ConfigReader looks up configuration values. Unknown keys yield "".
type ConfigReader interface {
	Get(key string) string
	DefaultSender() *config.SenderConfig
}

// MailQueue schedules templated emails. configure fills in the envelope.
type MailQueue interface {
	Queue(ctx context.Context, template string, data any, configure func(*email.Message)) error
}

// Subscriber registers event handlers.
type Subscriber interface {
	Subscribe(kind events.Kind, h events.Handler, priority int)
}

// WelcomeEmailData is passed to the welcome template.
type WelcomeEmailData struct {
	Hash           string
	ActivationCode string
	Email          string
}

// ResetEmailData is passed to the reset template.
type ResetEmailData struct {
	Hash  string
	Code  string
	Email string
}

// EventNotifier turns user events into session changes and emails.
type EventNotifier struct {
	session SessionStore
	config  ConfigReader
	mail    MailQueue
}

// New creates an EventNotifier.
func New(session SessionStore, cfg ConfigReader, mail MailQueue) *EventNotifier {
	return &EventNotifier{
		session: session,
		config:  cfg,
		mail:    mail,
	}
}

// Subscribe registers the notifier for all user events.
func (n *EventNotifier) Subscribe(bus Subscriber) {
	for _, kind := range events.Kinds {
		bus.Subscribe(kind, n, Priority)
	}
}

// Handle dispatches e to the matching handler.
func (n *EventNotifier) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.Login:
		if ev.User == nil {
			return missingUser(e)
		}
		return n.OnLogin(ctx, ev.User)
	case events.Logout:
		return n.OnLogout(ctx)
	case events.Registered:
		if ev.User == nil {
			return missingUser(e)
		}
		return n.OnWelcome(ctx, ev.User, ev.Activated)
	case events.Resend:
		if ev.User == nil {
			return missingUser(e)
		}
		return n.OnWelcome(ctx, ev.User, ev.Activated)
	case events.Reset:
		if ev.User == nil {
			return missingUser(e)
		}
		return n.OnPasswordReset(ctx, ev.User, ev.Code)
	default:
		return fmt.Errorf("unexpected %T for %s", e, e.Kind())
	}
}

func missingUser(e events.Event) error {
	return fmt.Errorf("%s event without user", e.Kind())
}

// OnLogin stores the user's id and email in the session.
func (n *EventNotifier) OnLogin(ctx context.Context, user *models.User) error {
	if err := n.session.Put(ctx, SessionUserID, user.ID); err != nil {
		return err
	}
	return n.session.Put(ctx, SessionEmail, user.Email)
}

// OnLogout discards the whole session.
func (n *EventNotifier) OnLogout(ctx context.Context) error {
	return n.session.Flush(ctx)
}

// OnWelcome sends the activation email unless the user is already activated.
func (n *EventNotifier) OnWelcome(ctx context.Context, user *models.User, activated bool) error {
	if activated {
		return nil
	}

	return n.send(ctx, user.Email, n.config.Get(config.SubjectWelcomeKey), TemplateWelcome, WelcomeEmailData{
		Hash:           user.Hash,
		ActivationCode: user.GetActivationCode(),
		Email:          user.Email,
	})
}

// OnPasswordReset sends the reset email carrying code.
func (n *EventNotifier) OnPasswordReset(ctx context.Context, user *models.User, code string) error {
	return n.send(ctx, user.Email, n.config.Get(config.SubjectResetPasswordKey), TemplateReset, ResetEmailData{
		Hash:  user.Hash,
		Code:  code,
		Email: user.Email,
	})
}

func (n *EventNotifier) send(ctx context.Context, to, subject, template string, data any) error {
	from := ResolveSenderAddress(n.config.DefaultSender())

	return n.mail.Queue(ctx, template, data, func(m *email.Message) {
		m.SetTo(to).
			SetFrom(from.Address, from.Name).
			SetSubject(subject)
	})
}
