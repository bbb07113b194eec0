// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
)

// Client-side error codes.
const (
	CodeReauthenticationRequired = "REAUTHENTICATION_REQUIRED"
	CodeTransport                = "CLIENT_TRANSPORT"
	CodeDecodeFailed             = "CLIENT_DECODE_FAILED"
)

// ErrReauthenticationRequired is returned once the session cannot be
// recovered by refreshing. Local credentials have been cleared and the
// user must log in again.
var ErrReauthenticationRequired = errors.New("reauthentication required")

// APIError is an error response from the auth API.
type APIError struct {
	Status            int    `json:"-"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	AttemptsLeft      *int   `json:"attemptsLeft,omitempty"`
	RetryAfterMinutes *int   `json:"retryAfterMinutes,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d, %s)", e.Message, e.Status, e.Code)
}

// AsAPIError extracts the API error from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return oops.Code(apiErr.Code).With("status", resp.StatusCode).Wrap(apiErr)
}

// tokenFailure reports the code of an error that means the access token
// was not accepted, or "" for any other outcome.
func tokenFailure(err error) string {
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		return ""
	}
	switch apiErr.Code {
	case auth.CodeNoToken, auth.CodeTokenExpired, auth.CodeInvalidToken, auth.CodeUserNotFound:
		return apiErr.Code
	}
	return ""
}

func reauthenticationRequired(cause error) error {
	b := oops.Code(CodeReauthenticationRequired)
	if cause != nil {
		b = b.With("cause", cause.Error())
		if apiErr, ok := AsAPIError(cause); ok {
			b = b.With("cause_code", apiErr.Code)
		}
	}
	return b.Wrap(ErrReauthenticationRequired)
}
