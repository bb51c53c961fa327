// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/authnotify/internal/models"
)

// CreateUser inserts the user and fills in its ID and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, hash, password_hash, activation_code, activated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.Hash, user.PasswordHash, user.ActivationCode, user.ActivatedAt, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE email = ?`, email)
}

// GetUserByHash retrieves a user by the public hash used in email links.
func (r *Repository) GetUserByHash(ctx context.Context, hash string) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE hash = ?`, hash)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UserExists checks if a user with the given email exists.
func (r *Repository) UserExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users WHERE email = ?`, email); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ActivateUser marks the user as activated at the given time.
func (r *Repository) ActivateUser(ctx context.Context, id int64, at time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET activated_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id))
}

// SetResetCode stores the hash of a pending password reset code.
func (r *Repository) SetResetCode(ctx context.Context, id int64, codeHash string, expiresAt time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET reset_code_hash = ?, reset_expires_at = ?, updated_at = ? WHERE id = ?`,
		codeHash, expiresAt.UTC(), time.Now().UTC(), id))
}

// UpdatePassword replaces the password hash and discards any pending reset code.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_code_hash = NULL, reset_expires_at = NULL, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id))
}
