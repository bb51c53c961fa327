// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/authnotify/internal/services/auth"
	"codeberg.org/oliverandrich/authnotify/internal/services/email"
	"codeberg.org/oliverandrich/authnotify/internal/services/session"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details []auth.ValidationError `json:"details,omitempty"`
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, ErrorResponse{Error: message})
}

// respondError maps service errors to HTTP responses.
func respondError(c echo.Context, err error) error {
	var verr *auth.PasswordValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "password does not meet requirements",
			Details: verr.Errors,
		})
	case errors.Is(err, auth.ErrInvalidEmail):
		return jsonError(c, http.StatusBadRequest, "invalid email")
	case errors.Is(err, auth.ErrUserExists):
		return jsonError(c, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return jsonError(c, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrNotActivated):
		return jsonError(c, http.StatusForbidden, "account is not activated")
	case errors.Is(err, auth.ErrInvalidCode):
		return jsonError(c, http.StatusBadRequest, "invalid or expired code")
	case errors.Is(err, email.ErrQueueFull), errors.Is(err, email.ErrQueueClosed):
		slog.Warn("email could not be queued", "error", err)
		return jsonError(c, http.StatusServiceUnavailable, "email could not be sent, try again later")
	case errors.Is(err, session.ErrNoSession):
		slog.Error("request without session", "error", err)
		return jsonError(c, http.StatusInternalServerError, "session unavailable")
	}

	slog.Error("request failed", "error", err)
	return jsonError(c, http.StatusInternalServerError, "internal error")
}
