// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/authnotify/internal/events"
	"codeberg.org/oliverandrich/authnotify/internal/models"
	"codeberg.org/oliverandrich/authnotify/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotActivated       = errors.New("account is not activated")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrInvalidEmail       = errors.New("invalid email format")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Dispatcher publishes user events.
type Dispatcher interface {
	Dispatch(ctx context.Context, e events.Event) error
}

type Service struct {
	repo   *repository.Repository
	events Dispatcher
	now    func() time.Time
}

func NewService(repo *repository.Repository, dispatcher Dispatcher) *Service {
	return &Service{
		repo:   repo,
		events: dispatcher,
		now:    time.Now,
	}
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Email    string
	Password string
}

// Register creates a new, not yet activated account and publishes user.registered.
// When publishing fails the account is kept and returned along with the error.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}

	if err := ValidatePassword(params.Password, email); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	activationCode, _, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:          email,
		Hash:           uuid.NewString(),
		PasswordHash:   string(passwordHash),
		ActivationCode: activationCode,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("register_success", "user_id", user.ID, "email", email)

	if err := s.publish(ctx, events.Registered{User: user, Activated: user.IsActivated()}); err != nil {
		return user, err
	}
	return user, nil
}

// Activate activates the account identified by hash if code matches.
// Activating an already active account is a no-op.
func (s *Service) Activate(ctx context.Context, hash, code string) (*models.User, error) {
	user, err := s.repo.GetUserByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.IsActivated() {
		return user, nil
	}

	if !tokensEqual(user.GetActivationCode(), code) {
		slog.Warn("activation_failed", "user_id", user.ID, "reason", "invalid_code")
		return nil, ErrInvalidCode
	}

	now := s.now().UTC()
	if err := s.repo.ActivateUser(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to activate user: %w", err)
	}
	user.ActivatedAt = &now

	slog.Info("activation_success", "user_id", user.ID)
	return user, nil
}

// ResendActivation publishes user.resend for the account with the given email.
// Unknown addresses are ignored so callers cannot enumerate accounts.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil || user == nil {
		return err
	}

	return s.publish(ctx, events.Resend{User: user, Activated: user.IsActivated()})
}

// Login authenticates a user, publishes user.login and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActivated() {
		slog.Warn("login_failed", "email", email, "reason", "not_activated")
		return nil, ErrNotActivated
	}

	if err := s.publish(ctx, events.Login{User: user}); err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID, "email", email)
	return user, nil
}

// Logout publishes user.logout.
func (s *Service) Logout(ctx context.Context) error {
	return s.publish(ctx, events.Logout{})
}

// RequestPasswordReset stores a new reset code and publishes user.reset with
// the plaintext code. Unknown addresses are ignored.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil || user == nil {
		return err
	}

	code, codeHash, err := GenerateToken()
	if err != nil {
		return err
	}

	expiresAt := s.now().Add(ResetTokenExpiry)
	if err := s.repo.SetResetCode(ctx, user.ID, codeHash, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	user.ResetCodeHash = &codeHash
	user.ResetExpiresAt = &expiresAt

	slog.Info("password_reset_requested", "user_id", user.ID)
	return s.publish(ctx, events.Reset{User: user, Code: code})
}

// VerifyResetCode checks that code is the pending, unexpired reset code of
// the user identified by hash.
func (s *Service) VerifyResetCode(ctx context.Context, hash, code string) error {
	_, err := s.pendingReset(ctx, hash, code)
	return err
}

// ResetPassword sets a new password if code is the pending, unexpired reset code.
func (s *Service) ResetPassword(ctx context.Context, hash, code, password string) error {
	user, err := s.pendingReset(ctx, hash, code)
	if err != nil {
		return err
	}

	if err := ValidatePassword(password, user.Email); err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_reset_success", "user_id", user.ID)
	return nil
}

func (s *Service) pendingReset(ctx context.Context, hash, code string) (*models.User, error) {
	user, err := s.repo.GetUserByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPendingReset(s.now()) || !tokensEqual(*user.ResetCodeHash, HashToken(code)) {
		slog.Warn("password_reset_failed", "user_id", user.ID, "reason", "invalid_code")
		return nil, ErrInvalidCode
	}
	return user, nil
}

// CurrentUser returns the user with the given id.
func (s *Service) CurrentUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Debug("ignoring request for unknown email", "email", email)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) error {
	if err := s.events.Dispatch(ctx, e); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Kind(), err)
	}
	return nil
}

// canonicalEmail is the form addresses are stored and looked up in.
func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEmail(email string) (string, error) {
	email = canonicalEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
