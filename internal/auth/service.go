// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authvault/authvault/pkg/errutil"
)

// Session is the result of a successful signup or login.
type Session struct {
	TokenPair
	User UserSummary `json:"user"`
}

// Service implements the authentication session protocol.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenService
	policy LockoutPolicy
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLockoutPolicy replaces the default lockout policy.
func WithLockoutPolicy(policy LockoutPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = policy
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}

	s := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		policy: DefaultLockoutPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Errorf("logger cannot be nil")
	}
	return s, nil
}

// Policy returns the lockout policy in effect.
func (s *Service) Policy() LockoutPolicy { return s.policy }

// Signup creates an account and its first token pair.
func (s *Service) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	email, err = NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	user, err := NewUser(name, email, hash)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, internalError("issue tokens", err)
	}
	digest := HashRefreshToken(pair.RefreshToken)
	user.RefreshTokenHash = &digest

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmail(email)
		}
		return nil, internalError("create user", err)
	}

	s.logger.InfoContext(ctx, "account created", "user_id", user.ID.String())
	return &Session{TokenPair: pair, User: user.Summary()}, nil
}

// Login authenticates by email and password. The lock is checked before the
// password; a wrong password is recorded against the lockout policy.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, validationError("Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, internalError("get user by email", err)
		}
		// Verify against a dummy hash so unknown emails take as long as known ones.
		_, _ = s.hasher.Verify(password, s.dummy()) //nolint:errcheck // result is irrelevant
		return nil, invalidCredentials(nil)
	}

	if s.policy.IsLocked(user.Lockout()) {
		return nil, accountLocked(s.policy, user.Lockout())
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, internalError("verify password", err)
	}

	if !valid {
		state, err := s.users.UpdateLockout(ctx, user.ID, func(current LockoutState) (LockoutState, error) {
			return s.policy.RecordFailure(current), nil
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, invalidCredentials(nil)
			}
			return nil, internalError("record login failure", err)
		}
		left := s.policy.AttemptsLeft(state)
		locked := s.policy.IsLocked(state)
		if locked && left == 0 {
			s.logger.WarnContext(ctx, "account locked after repeated failures",
				"user_id", user.ID.String(),
				"attempts", state.Attempts,
			)
		}
		detail := &failureDetail{attemptsLeft: left, locked: locked}
		if locked {
			detail.lockMinutes = s.policy.RemainingMinutes(state)
		}
		return nil, invalidCredentials(detail)
	}

	_, err = s.users.UpdateLockout(ctx, user.ID, func(current LockoutState) (LockoutState, error) {
		// A concurrent failure may have locked the account since it was read.
		if s.policy.IsLocked(current) {
			return current, accountLocked(s.policy, current)
		}
		return s.policy.RecordSuccess(current), nil
	})
	if err != nil {
		if ErrorCode(err) == CodeAccountLocked {
			return nil, err
		}
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials(nil)
		}
		return nil, internalError("reset lockout", err)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, internalError("issue tokens", err)
	}
	digest := HashRefreshToken(pair.RefreshToken)
	if err := s.users.SetRefreshToken(ctx, user.ID, &digest); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials(nil)
		}
		return nil, internalError("store refresh token", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID.String())
	return &Session{TokenPair: pair, User: user.Summary()}, nil
}

// upgradeHash re-hashes with the current algorithm. Failures are logged and
// do not fail the login.
func (s *Service) upgradeHash(ctx context.Context, id ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, id, hash)
	}
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	s.logger.DebugContext(ctx, "password hash upgraded", "user_id", id.String())
}

// Refresh exchanges a refresh token for a new pair and rotates the stored
// token. Only one concurrent exchange of the same token can succeed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, tokenError(CodeNoToken, "Refresh token required")
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrTokenExpired) {
			reason = "expired"
		}
		return nil, oops.Code(CodeInvalidRefreshToken).
			Public("Invalid refresh token").
			With("reason", reason).
			Wrap(err)
	}
	userID := claims.UserID()

	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		return nil, internalError("issue tokens", err)
	}

	err = s.users.RotateRefreshToken(ctx, userID, HashRefreshToken(refreshToken), HashRefreshToken(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, ErrRefreshTokenMismatch) || errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "revoked refresh token presented", "user_id", userID.String())
			return nil, tokenError(CodeRefreshTokenRevoked, "Refresh token revoked")
		}
		return nil, internalError("rotate refresh token", err)
	}

	return &pair, nil
}

// Authenticate verifies an access token and returns its claims without
// touching the store.
func (s *Service) Authenticate(accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, tokenError(CodeNoToken, "Access token required")
	}
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, tokenError(CodeTokenExpired, "Access token expired")
		}
		return nil, tokenError(CodeInvalidToken, "Invalid access token")
	}
	return claims, nil
}

// Verify checks an access token and loads the user it names.
func (s *Service) Verify(ctx context.Context, accessToken string) (*UserSummary, error) {
	claims, err := s.Authenticate(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

// Logout clears the stored refresh token. It is idempotent.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return internalError("clear refresh token", err)
	}
	s.logger.InfoContext(ctx, "logged out", "user_id", userID.String())
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	if current == "" || next == "" {
		return validationError("Current and new password are required")
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkPassword(current, user.PasswordHash); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return internalError("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound(userID)
		}
		return internalError("update password", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

// UpdateProfile changes the name and/or email of a user.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, name, email *string) (*UserSummary, error) {
	var update ProfileUpdate
	if name != nil && strings.TrimSpace(*name) != "" {
		normalized, err := NormalizeName(*name)
		if err != nil {
			return nil, err
		}
		update.Name = &normalized
	}
	if email != nil && strings.TrimSpace(*email) != "" {
		normalized, err := NormalizeEmail(*email)
		if err != nil {
			return nil, err
		}
		update.Email = &normalized
	}
	if update.Name == nil && update.Email == nil {
		return nil, validationError("Name or email is required")
	}

	user, err := s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, duplicateEmail(*update.Email)
		case errors.Is(err, ErrNotFound):
			return nil, userNotFound(userID)
		}
		return nil, internalError("update profile", err)
	}

	summary := user.Summary()
	return &summary, nil
}

// DeleteAccount removes a user after checking the password.
func (s *Service) DeleteAccount(ctx context.Context, userID ulid.ULID, password string) error {
	if password == "" {
		return validationError("Password is required to delete account")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkPassword(password, user.PasswordHash); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound(userID)
		}
		return internalError("delete user", err)
	}

	s.logger.InfoContext(ctx, "account deleted", "user_id", userID.String())
	return nil
}

func (s *Service) loadUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound(id)
		}
		return nil, internalError("get user by id", err)
	}
	return user, nil
}

func (s *Service) checkPassword(password, hash string) error {
	valid, err := s.hasher.Verify(password, hash)
	if err != nil {
		return internalError("verify password", err)
	}
	if !valid {
		return oops.Code(CodeIncorrectPassword).
			Public("Password is incorrect").
			Errorf("password is incorrect")
	}
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(ulid.Make().String())
		if err != nil {
			errutil.LogError(s.logger, "dummy hash generation failed", err)
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

type failureDetail struct {
	attemptsLeft int
	locked       bool
	lockMinutes  int
}

func invalidCredentials(detail *failureDetail) error {
	if detail == nil {
		return oops.Code(CodeInvalidCredentials).
			Public("Invalid email or password").
			Errorf("invalid email or password")
	}
	public := fmt.Sprintf("Invalid password. %d attempts left", detail.attemptsLeft)
	if detail.locked {
		public = fmt.Sprintf("Account locked for %d minutes due to too many failed attempts", detail.lockMinutes)
	}
	return oops.Code(CodeInvalidCredentials).
		With("attempts_left", detail.attemptsLeft).
		With("locked", detail.locked).
		Public(public).
		Errorf("invalid password")
}

func accountLocked(policy LockoutPolicy, state LockoutState) error {
	minutes := policy.RemainingMinutes(state)
	return oops.Code(CodeAccountLocked).
		With("retry_minutes", minutes).
		With("locked_until", *state.LockUntil).
		Public(fmt.Sprintf("Account locked. Try again in %d minutes", minutes)).
		Errorf("account is temporarily locked")
}

func tokenError(code, public string) error {
	return oops.Code(code).Public(public).Errorf("%s", strings.ToLower(public))
}

func duplicateEmail(email string) error {
	return oops.Code(CodeDuplicateEmail).
		With("email", email).
		Public("Email already registered").
		Errorf("email already registered")
}

func userNotFound(id ulid.ULID) error {
	return oops.Code(CodeUserNotFound).
		With("user_id", id.String()).
		Public("User not found").
		Errorf("user not found")
}
