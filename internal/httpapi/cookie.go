// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/authvault/authvault/internal/auth"
)

// CookieConfig describes the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// DefaultCookieConfig returns a secure cookie scoped to the auth routes and
// living as long as a refresh token.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:   "refreshToken",
		Path:   Prefix,
		Secure: true,
		MaxAge: auth.DefaultRefreshTokenTTL,
	}
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     s.cookie.Path,
		MaxAge:   int(s.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     s.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(s.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
