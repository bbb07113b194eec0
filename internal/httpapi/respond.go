// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/observability"
	"github.com/authvault/authvault/pkg/errutil"
)

type errorBody struct {
	Message           string `json:"message"`
	Code              string `json:"code,omitempty"`
	AttemptsLeft      *int   `json:"attemptsLeft,omitempty"`
	RetryAfterMinutes *int   `json:"retryAfterMinutes,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

// StatusFor maps an auth error to its HTTP status.
func StatusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindAuthFailure:
		if auth.ErrorCode(err) == auth.CodeAccountLocked {
			return http.StatusLocked
		}
		return http.StatusUnauthorized
	case auth.KindTokenFailure, auth.KindNotFound:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err and records its outcome. Internal errors are logged
// and reported; callers only see a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := StatusFor(err)
	code := auth.PublicCode(err)
	s.metrics.ObserveOutcome(operation, code)

	body := errorBody{Code: code, Message: oops.GetPublic(err, "Server error")}
	if status == http.StatusInternalServerError {
		body.Message = "Server error"
		errutil.LogErrorContext(r.Context(), s.logger, operation+" failed", err)
		observability.CaptureError(r.Context(), err)
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		details := oopsErr.Context()
		if left, ok := intValue(details["attempts_left"]); ok {
			body.AttemptsLeft = &left
		}
		if locked, _ := details["locked"].(bool); locked {
			s.metrics.ObserveLockout()
		}
		if minutes, ok := intValue(details["retry_minutes"]); ok && code == auth.CodeAccountLocked {
			body.RetryAfterMinutes = &minutes
			w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
		}
	}

	writeJSON(w, status, body)
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// decode reads a size-limited JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(auth.CodeValidationFailed).
				With("limit", tooLarge.Limit).
				Public("Request body too large").
				Wrap(err)
		}
		return oops.Code(auth.CodeValidationFailed).Public("Invalid JSON body").Wrap(err)
	}

	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			msg := fieldMessage(fieldErrs[0])
			return oops.Code(auth.CodeValidationFailed).
				With("field", fieldErrs[0].Field()).
				Public(msg).
				Errorf("%s", msg)
		}
		return oops.Code(auth.CodeValidationFailed).Public("Invalid request").Wrap(err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return "Invalid email format"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
