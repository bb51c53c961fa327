// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package events defines the user lifecycle events and the bus that delivers them.
package events

import (
	"context"

	"codeberg.org/oliverandrich/authnotify/internal/models"
)

// Kind identifies a user lifecycle event.
type Kind int

const (
	KindLogin Kind = iota + 1
	KindLogout
	KindRegistered
	KindResend
	KindReset
)

// Kinds lists every known event kind.
var Kinds = []Kind{KindLogin, KindLogout, KindRegistered, KindResend, KindReset}

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "user.login"
	case KindLogout:
		return "user.logout"
	case KindRegistered:
		return "user.registered"
	case KindResend:
		return "user.resend"
	case KindReset:
		return "user.reset"
	}
	return "user.unknown"
}

// Event is a payload delivered by the bus.
type Event interface {
	Kind() Kind
}

// Login is published after a user authenticated successfully.
type Login struct {
	User *models.User
}

// Logout is published when the current session ends.
type Logout struct{}

// Registered is published after a new account was created.
type Registered struct {
	User      *models.User
	Activated bool
}

// Resend is published when a user asks for the activation email again.
type Resend struct {
	User      *models.User
	Activated bool
}

// Reset is published when a password reset code was issued.
type Reset struct {
	User *models.User
	Code string
}

func (Login) Kind() Kind      { return KindLogin }
func (Logout) Kind() Kind     { return KindLogout }
func (Registered) Kind() Kind { return KindRegistered }
func (Resend) Kind() Kind     { return KindResend }
func (Reset) Kind() Kind      { return KindReset }

// Handler reacts to events it was subscribed to.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f(ctx, e).
func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}
