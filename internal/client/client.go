// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package client is a Go client for the authvault HTTP API. Its Manager
// keeps the access token in memory and the refresh token in a cookie jar,
// and transparently refreshes an expired access token exactly once per
// request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/authvault/authvault/internal/auth"
)

const apiPrefix = "/api/auth"

// Defaults for Manager options.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
)

// Manager holds one user's session against the API. It is safe for
// concurrent use.
type Manager struct {
	base      *url.URL
	http      *http.Client
	jar       *sessionJar
	logger    *slog.Logger
	now       func() time.Time
	refresher *refreshCoordinator

	mu          sync.RWMutex
	accessToken string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransport sets the round tripper used for every request.
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) { m.http.Transport = rt }
}

// WithRequestTimeout bounds each HTTP exchange.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) { m.http.Timeout = d }
}

// WithRefreshTimeout bounds the shared refresh request.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refresher.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock sets the clock used to judge access token expiry locally.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Manager, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("CLIENT_INVALID_URL").With("url", baseURL).Errorf("invalid base URL %q", baseURL)
	}

	jar := newSessionJar()
	m := &Manager{
		base:   base,
		http:   &http.Client{Jar: jar, Timeout: DefaultRequestTimeout},
		jar:    jar,
		logger: slog.Default(),
		now:    time.Now,
	}
	m.refresher = &refreshCoordinator{
		timeout: DefaultRefreshTimeout,
		current: m.AccessToken,
		fetch:   m.fetchAccessToken,
		usable:  m.accessTokenUsable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessToken returns the access token currently held, or "".
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken
}

// Authenticated reports whether the Manager holds an access token.
func (m *Manager) Authenticated() bool {
	return m.AccessToken() != ""
}

func (m *Manager) setAccessToken(token string) {
	m.mu.Lock()
	m.accessToken = token
	m.mu.Unlock()
}

// clearCredentials drops the access token and the refresh cookie.
func (m *Manager) clearCredentials() {
	m.setAccessToken("")
	m.jar.Reset()
}

type sessionResponse struct {
	AccessToken string           `json:"accessToken"`
	User        auth.UserSummary `json:"user"`
}

type userResponse struct {
	User auth.UserSummary `json:"user"`
}

// Signup creates an account and starts a session for it.
func (m *Manager) Signup(ctx context.Context, name, email, password string) (*auth.UserSummary, error) {
	return m.startSession(ctx, "/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Login starts a session.
func (m *Manager) Login(ctx context.Context, email, password string) (*auth.UserSummary, error) {
	return m.startSession(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (m *Manager) startSession(ctx context.Context, path string, in any) (*auth.UserSummary, error) {
	body, err := encode(in)
	if err != nil {
		return nil, err
	}
	var out sessionResponse
	if err := m.send(ctx, http.MethodPost, apiPrefix+path, "", body, &out); err != nil {
		return nil, err
	}
	m.setAccessToken(out.AccessToken)
	return &out.User, nil
}

// Refresh exchanges the refresh cookie for a new access token. Concurrent
// calls share one request.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err := m.refresher.Refresh(ctx, m.AccessToken())
	return err
}

// Verify returns the signed-in user.
func (m *Manager) Verify(ctx context.Context) (*auth.UserSummary, error) {
	var out userResponse
	if err := m.Do(ctx, http.MethodGet, apiPrefix+"/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout ends the session on the server and forgets local credentials.
// Logging out of a session that is already gone succeeds.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.Do(ctx, http.MethodPost, apiPrefix+"/logout", nil, nil)
	m.clearCredentials()
	if errors.Is(err, ErrReauthenticationRequired) {
		return nil
	}
	return err
}

// ChangePassword replaces the password. The session stays valid.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	return m.Do(ctx, http.MethodPut, apiPrefix+"/change-password", map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, nil)
}

// UpdateProfile changes the name, the email, or both. Nil leaves a field
// unchanged.
func (m *Manager) UpdateProfile(ctx context.Context, name, email *string) (*auth.UserSummary, error) {
	in := map[string]string{}
	if name != nil {
		in["name"] = *name
	}
	if email != nil {
		in["email"] = *email
	}
	var out userResponse
	if err := m.Do(ctx, http.MethodPut, apiPrefix+"/update-profile", in, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// DeleteAccount deletes the account and forgets local credentials.
func (m *Manager) DeleteAccount(ctx context.Context, password string) error {
	err := m.Do(ctx, http.MethodDelete, apiPrefix+"/delete-account", map[string]string{
		"password": password,
	}, nil)
	if err != nil {
		return err
	}
	m.clearCredentials()
	return nil
}

// Do sends an authenticated request and decodes a JSON response into out
// when out is non-nil. When the access token has expired it refreshes
// once and retries once. Any other token failure, a failed refresh, or a
// retry that is still rejected clears local credentials and returns an
// error matching ErrReauthenticationRequired.
func (m *Manager) Do(ctx context.Context, method, path string, in, out any) error {
	body, err := encode(in)
	if err != nil {
		return err
	}

	token := m.AccessToken()
	err = m.send(ctx, method, path, token, body, out)
	switch code := tokenFailure(err); code {
	case "":
		return err
	case auth.CodeTokenExpired:
	default:
		return m.reauthenticate(ctx, err)
	}

	fresh, err := m.refresher.Refresh(ctx, token)
	if err != nil {
		return err
	}

	err = m.send(ctx, method, path, fresh, body, out)
	if tokenFailure(err) != "" {
		return m.reauthenticate(ctx, err)
	}
	return err
}

func (m *Manager) reauthenticate(ctx context.Context, cause error) error {
	m.clearCredentials()
	m.logger.InfoContext(ctx, "session ended, credentials cleared", "cause", cause.Error())
	return reauthenticationRequired(cause)
}

// fetchAccessToken posts the refresh cookie. Failure of any kind ends the
// session.
func (m *Manager) fetchAccessToken(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := m.send(ctx, http.MethodPost, apiPrefix+"/refresh", "", nil, &out); err != nil {
		return "", m.reauthenticate(ctx, err)
	}
	m.setAccessToken(out.AccessToken)
	m.logger.DebugContext(ctx, "access token refreshed")
	return out.AccessToken, nil
}

// accessTokenUsable reports whether token is before its exp claim by the
// local clock. Tokens whose claims cannot be read are left to the server.
func (m *Manager) accessTokenUsable(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return true
	}
	return m.now().Before(claims.ExpiresAt.Time)
}

func encode(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, oops.Code("CLIENT_ENCODE_FAILED").Wrap(err)
	}
	return body, nil
}

// send performs one HTTP exchange. body is re-read from the start on every
// call so a request can be retried.
func (m *Manager) send(ctx context.Context, method, path, token string, body []byte, out any) error {
	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.base.JoinPath(path).String(), payload)
	if err != nil {
		return oops.Code(CodeTransport).With("method", method).With("path", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return oops.Code(CodeTransport).With("method", method).With("path", path).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code(CodeDecodeFailed).With("path", path).Wrap(err)
	}
	return nil
}

// sessionJar is a cookie jar that can be emptied.
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	j := &sessionJar{}
	j.Reset()
	return j
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Reset discards every cookie.
func (j *sessionJar) Reset() {
	jar, _ := cookiejar.New(nil) // never fails without options
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
