// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// User is an account that can log in, activate and reset its password.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64      `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	Hash           string     `db:"hash" json:"hash"` // public identifier used in email links
	PasswordHash   string     `db:"password_hash" json:"-"`
	ActivationCode string     `db:"activation_code" json:"-"`
	ActivatedAt    *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	ResetCodeHash  *string    `db:"reset_code_hash" json:"-"` // SHA256 of the pending reset code
	ResetExpiresAt *time.Time `db:"reset_expires_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// GetActivationCode returns the code that proves the user may activate the account.
func (u *User) GetActivationCode() string {
	return u.ActivationCode
}

// IsActivated reports whether the account has been activated.
func (u *User) IsActivated() bool {
	return u.ActivatedAt != nil
}

// HasPendingReset reports whether a reset code exists and is still valid at now.
func (u *User) HasPendingReset(now time.Time) bool {
	if u.ResetCodeHash == nil || u.ResetExpiresAt == nil {
		return false
	}
	return now.Before(*u.ResetExpiresAt)
}
