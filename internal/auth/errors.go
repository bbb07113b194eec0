// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/authvault/authvault/pkg/errutil"
)

// Store sentinels. Repository implementations wrap these so callers can
// match with errors.Is regardless of the backing engine.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrRefreshTokenMismatch is returned by a conditional rotation when the
	// stored refresh token no longer equals the presented one.
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
)

// Error codes surfaced to callers.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeIncorrectPassword   = "INCORRECT_PASSWORD"
	CodeNoToken             = "NO_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenRevoked = "REFRESH_TOKEN_REVOKED"
	CodeDuplicateEmail      = "DUPLICATE_EMAIL"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInternal            = "INTERNAL"
)

// Kind classifies an error for transport mapping and client reaction.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindAuthFailure
	KindTokenFailure
	KindConflict
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:     "INTERNAL",
	KindValidation:   "VALIDATION",
	KindAuthFailure:  "AUTH_FAILURE",
	KindTokenFailure: "TOKEN_FAILURE",
	KindConflict:     "CONFLICT",
	KindNotFound:     "NOT_FOUND",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

var codeKinds = map[string]Kind{
	CodeValidationFailed:    KindValidation,
	CodeWeakPassword:        KindValidation,
	CodeInvalidCredentials:  KindAuthFailure,
	CodeAccountLocked:       KindAuthFailure,
	CodeIncorrectPassword:   KindAuthFailure,
	CodeNoToken:             KindTokenFailure,
	CodeTokenExpired:        KindTokenFailure,
	CodeInvalidToken:        KindTokenFailure,
	CodeInvalidRefreshToken: KindTokenFailure,
	CodeRefreshTokenRevoked: KindTokenFailure,
	CodeDuplicateEmail:      KindConflict,
	CodeUserNotFound:        KindNotFound,
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}

// KindOf classifies err. Unknown codes and plain errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if kind, ok := codeKinds[ErrorCode(err)]; ok {
		return kind
	}
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// PublicCode returns the code a caller may see: the error's own code when it
// is part of the taxonomy, otherwise INTERNAL.
func PublicCode(err error) string {
	code := ErrorCode(err)
	if _, ok := codeKinds[code]; ok {
		return code
	}
	return CodeInternal
}

func validationError(msg string) error {
	return oops.Code(CodeValidationFailed).Public(msg).Errorf("%s", msg)
}

// internalError hides err behind INTERNAL. oops reports the deepest code in
// a chain, so a cause carrying a taxonomy code is recorded as cause_code and
// flattened instead of wrapped.
func internalError(operation string, err error) error {
	builder := oops.Code(CodeInternal).
		Public("Server error").
		With("operation", operation)
	if code := ErrorCode(err); code != "" {
		if _, ok := codeKinds[code]; ok {
			return builder.With("cause_code", code).Errorf("%s: %v", operation, err)
		}
	}
	return builder.Wrap(err)
}
