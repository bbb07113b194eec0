// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

const userColumns = `id, name, email, password_hash, refresh_token_hash, login_attempts, lock_until, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool DB) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		user.RefreshTokenHash,
		user.LoginAttempts,
		user.LockUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// UpdateLockout runs apply against the row locked with SELECT ... FOR UPDATE,
// so concurrent logins for the same user serialize on the row.
func (r *UserRepository) UpdateLockout(ctx context.Context, id ulid.ULID, apply func(auth.LockoutState) (auth.LockoutState, error)) (auth.LockoutState, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return auth.LockoutState{}, oops.Code("USER_LOCKOUT_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}

	next, err := updateLockoutTx(ctx, tx, id, apply)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return auth.LockoutState{}, oops.Code("USER_LOCKOUT_FAILED").
				With("operation", "rollback").
				Wrap(errors.Join(err, rbErr))
		}
		return auth.LockoutState{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return auth.LockoutState{}, oops.Code("USER_LOCKOUT_FAILED").
			With("operation", "commit").
			With("id", id.String()).
			Wrap(err)
	}
	return next, nil
}

func updateLockoutTx(ctx context.Context, tx pgx.Tx, id ulid.ULID, apply func(auth.LockoutState) (auth.LockoutState, error)) (auth.LockoutState, error) {
	var current auth.LockoutState
	err := tx.QueryRow(ctx, `SELECT login_attempts, lock_until FROM users WHERE id = $1 FOR UPDATE`, id.String()).
		Scan(&current.Attempts, &current.LockUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LockoutState{}, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.LockoutState{}, oops.Code("USER_LOCKOUT_FAILED").
			With("operation", "select lockout").
			With("id", id.String()).
			Wrap(err)
	}

	next, err := apply(current)
	if err != nil {
		return auth.LockoutState{}, err
	}

	_, err = tx.Exec(ctx, `UPDATE users SET login_attempts = $2, lock_until = $3, updated_at = $4 WHERE id = $1`,
		id.String(), next.Attempts, next.LockUntil, time.Now().UTC())
	if err != nil {
		return auth.LockoutState{}, oops.Code("USER_LOCKOUT_FAILED").
			With("operation", "update lockout").
			With("id", id.String()).
			Wrap(err)
	}
	return next, nil
}

// SetRefreshToken replaces the stored refresh digest.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, tokenHash *string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), tokenHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_SET_REFRESH_TOKEN_FAILED").
			With("operation", "set refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RotateRefreshToken is a compare-and-swap on refresh_token_hash.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id ulid.ULID, presentedHash, nextHash string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET refresh_token_hash = $3, updated_at = $4 WHERE id = $1 AND refresh_token_hash = $2`,
		id.String(), presentedHash, nextHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_ROTATE_REFRESH_TOKEN_FAILED").
			With("operation", "rotate refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeRefreshTokenRevoked).
			With("id", id.String()).
			Wrap(auth.ErrRefreshTokenMismatch)
	}
	return nil
}

// UpdateProfile changes name and/or email; nil fields keep their value.
func (r *UserRepository) UpdateProfile(ctx context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(), update.Name, update.Email, time.Now().UTC())

	user, err := scanUser(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	case isUniqueViolation(err):
		return nil, oops.Code(auth.CodeDuplicateEmail).
			With("id", id.String()).
			Wrap(auth.ErrDuplicateEmail)
	case err != nil:
		return nil, oops.Code("USER_UPDATE_PROFILE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// UpdatePassword updates only the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
