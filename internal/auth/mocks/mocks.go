// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authvault/authvault/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

// UpdateLockout passes the configured current state through apply, so the
// caller's transition logic runs as it would against a real store.
func (m *MockUserRepository) UpdateLockout(ctx context.Context, id ulid.ULID, apply func(auth.LockoutState) (auth.LockoutState, error)) (auth.LockoutState, error) {
	ret := m.Called(ctx, id, apply)
	if err := ret.Error(1); err != nil {
		return auth.LockoutState{}, err
	}
	switch v := ret.Get(0).(type) {
	case auth.LockoutState:
		return apply(v)
	default:
		return auth.LockoutState{}, nil
	}
}

func (m *MockUserRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, tokenHash *string) error {
	return m.Called(ctx, id, tokenHash).Error(0)
}

func (m *MockUserRepository) RotateRefreshToken(ctx context.Context, id ulid.ULID, presentedHash, nextHash string) error {
	return m.Called(ctx, id, presentedHash, nextHash).Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id ulid.ULID, update auth.ProfileUpdate) (*auth.User, error) {
	ret := m.Called(ctx, id, update)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

var (
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
)

// MockAuthenticator mocks the protocol surface of *auth.Service.
type MockAuthenticator struct {
	mock.Mock
}

// NewMockAuthenticator creates a mock that asserts its expectations on cleanup.
func NewMockAuthenticator(t TestingT) *MockAuthenticator {
	m := &MockAuthenticator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuthenticator) Signup(ctx context.Context, name, email, password string) (*auth.Session, error) {
	ret := m.Called(ctx, name, email, password)
	session, _ := ret.Get(0).(*auth.Session)
	return session, ret.Error(1)
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	ret := m.Called(ctx, email, password)
	session, _ := ret.Get(0).(*auth.Session)
	return session, ret.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	ret := m.Called(ctx, refreshToken)
	pair, _ := ret.Get(0).(*auth.TokenPair)
	return pair, ret.Error(1)
}

func (m *MockAuthenticator) Verify(ctx context.Context, accessToken string) (*auth.UserSummary, error) {
	ret := m.Called(ctx, accessToken)
	user, _ := ret.Get(0).(*auth.UserSummary)
	return user, ret.Error(1)
}

func (m *MockAuthenticator) Logout(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockAuthenticator) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	return m.Called(ctx, userID, current, next).Error(0)
}

func (m *MockAuthenticator) UpdateProfile(ctx context.Context, userID ulid.ULID, name, email *string) (*auth.UserSummary, error) {
	ret := m.Called(ctx, userID, name, email)
	user, _ := ret.Get(0).(*auth.UserSummary)
	return user, ret.Error(1)
}

func (m *MockAuthenticator) DeleteAccount(ctx context.Context, userID ulid.ULID, password string) error {
	return m.Called(ctx, userID, password).Error(0)
}
