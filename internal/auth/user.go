// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Field constraints.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
)

// User is a stored account record.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	// RefreshTokenHash is the digest of the single active refresh token.
	RefreshTokenHash *string
	LoginAttempts    int
	LockUntil        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserSummary is the public projection of a User.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewUser builds a User with a fresh ID from already validated input.
func NewUser(name, email, passwordHash string) (*User, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	email, err = NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, validationError("password hash is required")
	}
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Summary returns the public projection.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
	}
}

// Lockout returns the lockout counters of the record.
func (u *User) Lockout() LockoutState {
	return LockoutState{Attempts: u.LoginAttempts, LockUntil: u.LockUntil}
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("Name is required")
	}
	if len(name) > MaxNameLength {
		return "", validationError("Name is too long")
	}
	return name, nil
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
// Emails are compared case-insensitively everywhere.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", validationError("Email is required")
	}
	if len(email) > MaxEmailLength {
		return "", validationError("Email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationError("Email is invalid")
	}
	return email, nil
}

// ProfileUpdate carries optional profile changes. Nil fields are left as is.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// UserRepository persists user records.
//
// Implementations must make UpdateLockout and RotateRefreshToken atomic per
// record: concurrent callers never observe or overwrite a stale value.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail on collision.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateLockout reads the current lockout state, passes it to apply and
	// stores the result, all under a per-record lock. If apply returns an
	// error nothing is written and the error is returned unchanged.
	UpdateLockout(ctx context.Context, id ulid.ULID, apply func(LockoutState) (LockoutState, error)) (LockoutState, error)

	// SetRefreshToken replaces the stored refresh digest unconditionally.
	// A nil hash clears it.
	SetRefreshToken(ctx context.Context, id ulid.ULID, tokenHash *string) error

	// RotateRefreshToken replaces the stored digest only if it currently
	// equals presentedHash. Returns ErrRefreshTokenMismatch otherwise,
	// including when the user no longer exists.
	RotateRefreshToken(ctx context.Context, id ulid.ULID, presentedHash, nextHash string) error

	// UpdateProfile applies a profile change and returns the updated user.
	UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate) (*User, error)

	// UpdatePassword replaces only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error
}
