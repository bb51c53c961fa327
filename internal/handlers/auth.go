// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/authnotify/internal/notifier"
	"codeberg.org/oliverandrich/authnotify/internal/repository"
	"codeberg.org/oliverandrich/authnotify/internal/services/auth"
	"codeberg.org/oliverandrich/authnotify/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sess *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sess,
	}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest is the body of resend and reset requests.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetConfirmRequest is the body of a password reset confirmation.
type ResetConfirmRequest struct {
	Hash     string `json:"hash"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

var accepted = map[string]string{"status": "accepted"}

// Register creates an account and triggers the activation email.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Email == "" || req.Password == "" {
		return jsonError(c, http.StatusBadRequest, "email and password are required")
	}

	user, err := h.auth.Register(c.Request().Context(), auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, user)
}

// Activate activates an account from the link in the welcome email.
func (h *AuthHandlers) Activate(c echo.Context) error {
	hash, code := c.QueryParam("hash"), c.QueryParam("code")
	if hash == "" || code == "" {
		return jsonError(c, http.StatusBadRequest, "hash and code are required")
	}

	user, err := h.auth.Activate(c.Request().Context(), hash, code)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, user)
}

// Resend sends the activation email again. The response does not reveal
// whether the address is registered.
func (h *AuthHandlers) Resend(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return jsonError(c, http.StatusBadRequest, "email is required")
	}

	if err := h.auth.ResendActivation(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, accepted)
}

// Login authenticates the user and stores it in the session.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request")
	}

	user, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, user)
}

// Logout ends the session.
func (h *AuthHandlers) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	email := h.sessions.GetString(ctx, notifier.SessionEmail)

	if err := h.auth.Logout(ctx); err != nil {
		return respondError(c, err)
	}

	slog.Info("logout", "email", email)
	return c.NoContent(http.StatusNoContent)
}

// RequestReset emails a password reset link. The response does not reveal
// whether the address is registered.
func (h *AuthHandlers) RequestReset(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return jsonError(c, http.StatusBadRequest, "email is required")
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusAccepted, accepted)
}

// CheckReset validates the hash and code from the reset email link so a
// client can ask for the new password before confirming.
func (h *AuthHandlers) CheckReset(c echo.Context) error {
	hash, code := c.QueryParam("hash"), c.QueryParam("code")
	if hash == "" || code == "" {
		return jsonError(c, http.StatusBadRequest, "hash and code are required")
	}

	if err := h.auth.VerifyResetCode(c.Request().Context(), hash, code); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "valid", "hash": hash, "code": code})
}

// ConfirmReset sets a new password using the code from the reset email.
func (h *AuthHandlers) ConfirmReset(c echo.Context) error {
	var req ResetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Hash == "" || req.Code == "" || req.Password == "" {
		return jsonError(c, http.StatusBadRequest, "hash, code and password are required")
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Hash, req.Code, req.Password); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the user stored in the session.
func (h *AuthHandlers) Me(c echo.Context) error {
	ctx := c.Request().Context()
	userID := h.sessions.GetInt64(ctx, notifier.SessionUserID)
	if userID == 0 {
		return jsonError(c, http.StatusUnauthorized, "not authenticated")
	}

	user, err := h.auth.CurrentUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// account is gone, drop the stale session
			_ = h.sessions.Flush(ctx)
			return jsonError(c, http.StatusUnauthorized, "not authenticated")
		}
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, user)
}
