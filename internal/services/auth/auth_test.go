// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/oliverandrich/authnotify/internal/events"
	"codeberg.org/oliverandrich/authnotify/internal/repository"
	"codeberg.org/oliverandrich/authnotify/internal/services/auth"
	"codeberg.org/oliverandrich/authnotify/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-42-staple"

// recordingDispatcher keeps every published event.
type recordingDispatcher struct {
	events []events.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e events.Event) error {
	d.events = append(d.events, e)
	return d.err
}

func (d *recordingDispatcher) last() events.Event {
	if len(d.events) == 0 {
		return nil
	}
	return d.events[len(d.events)-1]
}

func newTestService(t *testing.T) (*auth.Service, *repository.Repository, *recordingDispatcher) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	d := &recordingDispatcher{}
	return auth.NewService(repo, d), repo, d
}

// registerActive registers and activates a user.
func registerActive(t *testing.T, svc *auth.Service, email string) {
	t.Helper()
	user, err := svc.Register(context.Background(), auth.RegisterParams{Email: email, Password: testPassword})
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), user.Hash, user.ActivationCode)
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	svc, repo, d := newTestService(t)

	user, err := svc.Register(context.Background(), auth.RegisterParams{
		Email:    "  New@Example.com ",
		Password: testPassword,
	})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NotEmpty(t, user.Hash)
	assert.Len(t, user.ActivationCode, auth.TokenLength*2)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.False(t, user.IsActivated())

	stored, err := repo.GetUserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.Hash, stored.Hash)

	require.Len(t, d.events, 1)
	registered, ok := d.last().(events.Registered)
	require.True(t, ok)
	assert.Equal(t, user, registered.User)
	assert.False(t, registered.Activated)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		err      error
	}{
		{"invalid email", "not-an-email", testPassword, auth.ErrInvalidEmail},
		{"display name", "User <user@example.com>", testPassword, auth.ErrInvalidEmail},
		{"duplicate", "taken@example.com", testPassword, auth.ErrUserExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, d := newTestService(t)
			testutil.NewTestUser(t, repo, "taken@example.com")

			_, err := svc.Register(context.Background(), auth.RegisterParams{Email: tt.email, Password: tt.password})

			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, d.events)
		})
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	svc, _, d := newTestService(t)

	_, err := svc.Register(context.Background(), auth.RegisterParams{Email: "user@example.com", Password: "short"})

	var verr *auth.PasswordValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, d.events)
}

func TestRegister_PublishErrorPropagates(t *testing.T) {
	svc, _, d := newTestService(t)
	errQueue := errors.New("queue unavailable")
	d.err = errQueue

	user, err := svc.Register(context.Background(), auth.RegisterParams{Email: "user@example.com", Password: testPassword})

	require.ErrorIs(t, err, errQueue)
	assert.Contains(t, err.Error(), "user.registered")
	require.NotNil(t, user)
	assert.NotZero(t, user.ID)
}

func TestActivate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	activated, err := svc.Activate(context.Background(), user.Hash, user.ActivationCode)

	require.NoError(t, err)
	assert.True(t, activated.IsActivated())
	stored, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActivated())
}

func TestActivate_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	_, err := svc.Activate(context.Background(), user.Hash, user.ActivationCode)
	require.NoError(t, err)
	again, err := svc.Activate(context.Background(), user.Hash, "anything")

	require.NoError(t, err)
	assert.True(t, again.IsActivated())
}

func TestActivate_InvalidCode(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	_, err := svc.Activate(context.Background(), user.Hash, "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	_, err = svc.Activate(context.Background(), "unknown-hash", user.ActivationCode)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestResendActivation(t *testing.T) {
	svc, repo, d := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	require.NoError(t, svc.ResendActivation(context.Background(), "user@example.com"))

	resend, ok := d.last().(events.Resend)
	require.True(t, ok)
	assert.Equal(t, user.ID, resend.User.ID)
	assert.False(t, resend.Activated)
}

func TestResendActivation_ActivatedUser(t *testing.T) {
	svc, _, d := newTestService(t)
	registerActive(t, svc, "user@example.com")

	require.NoError(t, svc.ResendActivation(context.Background(), "user@example.com"))

	resend, ok := d.last().(events.Resend)
	require.True(t, ok)
	assert.True(t, resend.Activated)
}

func TestResendActivation_UnknownEmail(t *testing.T) {
	svc, _, d := newTestService(t)

	err := svc.ResendActivation(context.Background(), "ghost@example.com")

	require.NoError(t, err)
	assert.Empty(t, d.events)
}

func TestLogin(t *testing.T) {
	svc, _, d := newTestService(t)
	registerActive(t, svc, "user@example.com")

	user, err := svc.Login(context.Background(), "user@example.com", testPassword)

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	login, ok := d.last().(events.Login)
	require.True(t, ok)
	assert.Equal(t, user.ID, login.User.ID)
}

func TestEmailLookup_MatchesRegisteredSpelling(t *testing.T) {
	const spelling = "  User@Example.COM "

	tests := []struct {
		name string
		call func(*auth.Service) error
		kind events.Kind
	}{
		{"login", func(svc *auth.Service) error {
			_, err := svc.Login(context.Background(), spelling, testPassword)
			return err
		}, events.KindLogin},
		{"resend", func(svc *auth.Service) error {
			return svc.ResendActivation(context.Background(), spelling)
		}, events.KindResend},
		{"reset", func(svc *auth.Service) error {
			return svc.RequestPasswordReset(context.Background(), spelling)
		}, events.KindReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, d := newTestService(t)
			registerActive(t, svc, "user@example.com")
			published := len(d.events)

			require.NoError(t, tt.call(svc))

			require.Len(t, d.events, published+1)
			assert.Equal(t, tt.kind, d.last().Kind())
		})
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		err      error
	}{
		{"unknown user", "ghost@example.com", testPassword, auth.ErrInvalidCredentials},
		{"wrong password", "active@example.com", "wrong-password-123", auth.ErrInvalidCredentials},
		{"not activated", "pending@example.com", testPassword, auth.ErrNotActivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, d := newTestService(t)
			registerActive(t, svc, "active@example.com")
			_, err := svc.Register(context.Background(), auth.RegisterParams{Email: "pending@example.com", Password: testPassword})
			require.NoError(t, err)
			published := len(d.events)

			_, err = svc.Login(context.Background(), tt.email, tt.password)

			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, d.events, published)
		})
	}
}

func TestLogout(t *testing.T) {
	svc, _, d := newTestService(t)

	require.NoError(t, svc.Logout(context.Background()))

	assert.Equal(t, events.Logout{}, d.last())
}

func TestRequestPasswordReset(t *testing.T) {
	svc, repo, d := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "user@example.com"))

	reset, ok := d.last().(events.Reset)
	require.True(t, ok)
	assert.Equal(t, user.ID, reset.User.ID)
	assert.NotEmpty(t, reset.Code)

	stored, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetCodeHash)
	assert.Equal(t, auth.HashToken(reset.Code), *stored.ResetCodeHash)
	assert.True(t, stored.HasPendingReset(time.Now()))
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	svc, _, d := newTestService(t)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))

	assert.Empty(t, d.events)
}

func requestReset(t *testing.T, svc *auth.Service, d *recordingDispatcher, email string) events.Reset {
	t.Helper()
	require.NoError(t, svc.RequestPasswordReset(context.Background(), email))
	reset, ok := d.last().(events.Reset)
	require.True(t, ok)
	return reset
}

func TestResetPassword(t *testing.T) {
	svc, _, d := newTestService(t)
	registerActive(t, svc, "user@example.com")
	reset := requestReset(t, svc, d, "user@example.com")
	newPassword := "another-long-passphrase-7"

	err := svc.ResetPassword(context.Background(), reset.User.Hash, reset.Code, newPassword)

	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "user@example.com", newPassword)
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "user@example.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// the code is single use
	err = svc.ResetPassword(context.Background(), reset.User.Hash, reset.Code, "yet-another-passphrase-8")
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestResetPassword_InvalidCode(t *testing.T) {
	svc, repo, d := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	err := svc.ResetPassword(context.Background(), user.Hash, "no-reset-requested", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	reset := requestReset(t, svc, d, "user@example.com")

	err = svc.ResetPassword(context.Background(), reset.User.Hash, "wrong", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	err = svc.ResetPassword(context.Background(), "unknown-hash", reset.Code, testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestResetPassword_Expired(t *testing.T) {
	svc, repo, d := newTestService(t)
	testutil.NewTestUser(t, repo, "user@example.com")
	reset := requestReset(t, svc, d, "user@example.com")

	svc.SetClock(func() time.Time { return time.Now().Add(auth.ResetTokenExpiry + time.Minute) })

	err := svc.ResetPassword(context.Background(), reset.User.Hash, reset.Code, testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestVerifyResetCode(t *testing.T) {
	svc, repo, d := newTestService(t)
	testutil.NewTestUser(t, repo, "user@example.com")
	reset := requestReset(t, svc, d, "user@example.com")
	ctx := context.Background()

	require.NoError(t, svc.VerifyResetCode(ctx, reset.User.Hash, reset.Code))
	// verifying leaves the code usable
	require.NoError(t, svc.VerifyResetCode(ctx, reset.User.Hash, reset.Code))

	assert.ErrorIs(t, svc.VerifyResetCode(ctx, reset.User.Hash, "wrong"), auth.ErrInvalidCode)
	assert.ErrorIs(t, svc.VerifyResetCode(ctx, "unknown-hash", reset.Code), auth.ErrInvalidCode)

	svc.SetClock(func() time.Time { return time.Now().Add(auth.ResetTokenExpiry + time.Minute) })
	assert.ErrorIs(t, svc.VerifyResetCode(ctx, reset.User.Hash, reset.Code), auth.ErrInvalidCode)
}

func TestResetPassword_WeakPassword(t *testing.T) {
	svc, repo, d := newTestService(t)
	testutil.NewTestUser(t, repo, "user@example.com")
	reset := requestReset(t, svc, d, "user@example.com")

	err := svc.ResetPassword(context.Background(), reset.User.Hash, reset.Code, "short")

	var verr *auth.PasswordValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCurrentUser(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := testutil.NewTestUser(t, repo, "user@example.com")

	got, err := svc.CurrentUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.CurrentUser(context.Background(), 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
