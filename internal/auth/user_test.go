// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	user, err := auth.NewUser("  Ada  ", "Ada@Example.COM", "hash")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID.String())
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, 0, user.LoginAttempts)
	assert.Nil(t, user.LockUntil)
	assert.Nil(t, user.RefreshTokenHash)
	assert.WithinDuration(t, time.Now(), user.CreatedAt, 5*time.Second)

	summary := user.Summary()
	assert.Equal(t, auth.UserSummary{ID: user.ID.String(), Name: "Ada", Email: "ada@example.com"}, summary)

	_, err = auth.NewUser("Ada", "ada@example.com", "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lower-cases and trims", "  Bob@Example.org ", "bob@example.org", false},
		{"plus addressing", "bob+tag@example.org", "bob+tag@example.org", false},
		{"empty", "   ", "", true},
		{"no at sign", "bob.example.org", "", true},
		{"display name form", "Bob <bob@example.org>", "", true},
		{"too long", strings.Repeat("a", 250) + "@x.io", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.NormalizeEmail(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	name, err := auth.NormalizeName(" Grace Hopper ")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", name)

	_, err = auth.NormalizeName("")
	assert.Error(t, err)

	_, err = auth.NormalizeName(strings.Repeat("n", auth.MaxNameLength+1))
	assert.Error(t, err)
}

func TestUser_Lockout(t *testing.T) {
	until := time.Now().Add(time.Minute)
	user := &auth.User{LoginAttempts: 3, LockUntil: &until}
	assert.Equal(t, auth.LockoutState{Attempts: 3, LockUntil: &until}, user.Lockout())
}
