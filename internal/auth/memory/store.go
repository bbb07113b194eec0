// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package memory provides an in-process UserRepository for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
)

// UserStore keeps users in a map guarded by a single mutex.
type UserStore struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
	now     func() time.Time
}

// NewUserStore creates an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a copy of user.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return oops.Code(auth.CodeDuplicateEmail).With("email", key).Wrap(auth.ErrDuplicateEmail)
	}
	if _, exists := s.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("user id already exists")
	}

	s.byID[user.ID] = clone(user)
	s.byEmail[key] = user.ID
	return nil
}

// GetByID returns a copy of the user.
func (s *UserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(user), nil
}

// GetByEmail returns a copy of the user with the given email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).With("email", email).Wrap(auth.ErrNotFound)
	}
	return clone(s.byID[id]), nil
}

// UpdateLockout applies a lockout transition under the store lock.
func (s *UserStore) UpdateLockout(_ context.Context, id ulid.ULID, apply func(auth.LockoutState) (auth.LockoutState, error)) (auth.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return auth.LockoutState{}, notFound(id)
	}

	next, err := apply(user.Lockout())
	if err != nil {
		return auth.LockoutState{}, err
	}
	user.LoginAttempts = next.Attempts
	user.LockUntil = copyTime(next.LockUntil)
	user.UpdatedAt = s.now().UTC()
	return next, nil
}

// SetRefreshToken replaces the stored refresh digest.
func (s *UserStore) SetRefreshToken(_ context.Context, id ulid.ULID, tokenHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	user.RefreshTokenHash = copyString(tokenHash)
	user.UpdatedAt = s.now().UTC()
	return nil
}

// RotateRefreshToken swaps the digest only if it equals presentedHash.
func (s *UserStore) RotateRefreshToken(_ context.Context, id ulid.ULID, presentedHash, nextHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok || user.RefreshTokenHash == nil || *user.RefreshTokenHash != presentedHash {
		return oops.Code(auth.CodeRefreshTokenRevoked).With("id", id.String()).Wrap(auth.ErrRefreshTokenMismatch)
	}
	user.RefreshTokenHash = &nextHash
	user.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateProfile applies a profile change.
func (s *UserStore) UpdateProfile(_ context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}

	if update.Email != nil {
		key := emailKey(*update.Email)
		if owner, taken := s.byEmail[key]; taken && owner != id {
			return nil, oops.Code(auth.CodeDuplicateEmail).With("email", key).Wrap(auth.ErrDuplicateEmail)
		}
		delete(s.byEmail, emailKey(user.Email))
		s.byEmail[key] = id
		user.Email = key
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	user.UpdatedAt = s.now().UTC()
	return clone(user), nil
}

// UpdatePassword replaces the password hash.
func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = s.now().UTC()
	return nil
}

// Delete removes a user.
func (s *UserStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	delete(s.byEmail, emailKey(user.Email))
	delete(s.byID, id)
	return nil
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func notFound(id ulid.ULID) error {
	return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
}

func clone(u *auth.User) *auth.User {
	c := *u
	c.RefreshTokenHash = copyString(u.RefreshTokenHash)
	c.LockUntil = copyTime(u.LockUntil)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ auth.UserRepository = (*UserStore)(nil)
