// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/authvault/authvault/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.Kind
	}{
		{"validation", oops.Code(auth.CodeValidationFailed).Errorf("bad"), auth.KindValidation},
		{"weak password", oops.Code(auth.CodeWeakPassword).Errorf("weak"), auth.KindValidation},
		{"invalid credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("no"), auth.KindAuthFailure},
		{"account locked", oops.Code(auth.CodeAccountLocked).Errorf("locked"), auth.KindAuthFailure},
		{"incorrect password", oops.Code(auth.CodeIncorrectPassword).Errorf("no"), auth.KindAuthFailure},
		{"expired token", oops.Code(auth.CodeTokenExpired).Errorf("expired"), auth.KindTokenFailure},
		{"revoked token", oops.Code(auth.CodeRefreshTokenRevoked).Errorf("revoked"), auth.KindTokenFailure},
		{"duplicate email", oops.Code(auth.CodeDuplicateEmail).Errorf("dup"), auth.KindConflict},
		{"user not found", oops.Code(auth.CodeUserNotFound).Errorf("gone"), auth.KindNotFound},
		{"wrapped duplicate sentinel", oops.Wrap(auth.ErrDuplicateEmail), auth.KindConflict},
		{"wrapped not found sentinel", oops.Wrap(auth.ErrNotFound), auth.KindNotFound},
		{"unknown code", oops.Code("DB_EXPLODED").Errorf("boom"), auth.KindInternal},
		{"plain error", errors.New("boom"), auth.KindInternal},
		{"nil", nil, auth.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
}

func TestPublicCode(t *testing.T) {
	assert.Equal(t, auth.CodeAccountLocked, auth.PublicCode(oops.Code(auth.CodeAccountLocked).Errorf("locked")))
	assert.Equal(t, auth.CodeInternal, auth.PublicCode(oops.Code("AUTH_INVALID_HASH").Errorf("bad hash")))
	assert.Equal(t, auth.CodeInternal, auth.PublicCode(errors.New("plain")))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "AUTH_FAILURE", auth.KindAuthFailure.String())
	assert.Equal(t, "TOKEN_FAILURE", auth.KindTokenFailure.String())
	assert.Equal(t, "UNKNOWN", auth.Kind(99).String())
}
