// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,max=254"`
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Message     string           `json:"message"`
	AccessToken string           `json:"accessToken"`
	User        auth.UserSummary `json:"user"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type userResponse struct {
	Message string            `json:"message,omitempty"`
	User    *auth.UserSummary `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "signup", err)
		return
	}

	session, err := s.auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, "signup", err)
		return
	}

	s.metrics.ObserveOutcome("signup", "OK")
	s.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Message:     "Account created successfully",
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "login", err)
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, "login", err)
		return
	}

	s.metrics.ObserveOutcome("login", "OK")
	s.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		Message:     "Login successful",
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

// handleRefresh clears the cookie on every failure so a dead token is not
// presented again.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, err := s.auth.Refresh(r.Context(), s.refreshCookie(r))
	if err != nil {
		s.clearRefreshCookie(w)
		s.writeError(w, r, "refresh", err)
		return
	}

	s.metrics.ObserveOutcome("refresh", "OK")
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Verify(r.Context(), bearerToken(r))
	if err != nil {
		s.writeError(w, r, "verify", err)
		return
	}
	s.metrics.ObserveOutcome("verify", "OK")
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, userID ulid.ULID) {
	if err := s.auth.Logout(r.Context(), userID); err != nil {
		s.writeError(w, r, "logout", err)
		return
	}
	s.metrics.ObserveOutcome("logout", "OK")
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageBody{Message: "Logged out successfully"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, userID ulid.ULID) {
	var req changePasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "change_password", err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, "change_password", err)
		return
	}
	s.metrics.ObserveOutcome("change_password", "OK")
	writeJSON(w, http.StatusOK, messageBody{Message: "Password changed successfully"})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, userID ulid.ULID) {
	var req updateProfileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "update_profile", err)
		return
	}
	user, err := s.auth.UpdateProfile(r.Context(), userID, req.Name, req.Email)
	if err != nil {
		s.writeError(w, r, "update_profile", err)
		return
	}
	s.metrics.ObserveOutcome("update_profile", "OK")
	writeJSON(w, http.StatusOK, userResponse{Message: "Profile updated successfully", User: user})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, userID ulid.ULID) {
	var req deleteAccountRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "delete_account", err)
		return
	}
	if err := s.auth.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		s.writeError(w, r, "delete_account", err)
		return
	}
	s.metrics.ObserveOutcome("delete_account", "OK")
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageBody{Message: "Account deleted successfully"})
}

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, userID ulid.ULID)

// authenticated resolves the bearer token to a live user before calling next.
func (s *Server) authenticated(operation string, next authenticatedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Verify(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, operation, err)
			return
		}
		userID, err := ulid.Parse(user.ID)
		if err != nil {
			s.writeError(w, r, operation, oops.Code(auth.CodeInternal).
				With("user_id", user.ID).
				Wrap(err))
			return
		}
		next(w, r, userID)
	}
}

// bearerToken returns the token from "Authorization: Bearer <token>", or ""
// when the header is missing or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
