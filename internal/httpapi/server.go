// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package httpapi serves the auth protocol as JSON over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/observability"
)

// Prefix is the path every auth route is mounted under.
const Prefix = "/api/auth"

const maxBodyBytes = 10 << 10

// Authenticator is the auth protocol the handlers drive. *auth.Service
// implements it.
type Authenticator interface {
	Signup(ctx context.Context, name, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Verify(ctx context.Context, accessToken string) (*auth.UserSummary, error)
	Logout(ctx context.Context, userID ulid.ULID) error
	ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error
	UpdateProfile(ctx context.Context, userID ulid.ULID, name, email *string) (*auth.UserSummary, error)
	DeleteAccount(ctx context.Context, userID ulid.ULID, password string) error
}

// Options configures the HTTP surface.
type Options struct {
	Cookie         CookieConfig
	AllowedOrigins []string
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

// Server holds the handlers and their dependencies.
type Server struct {
	auth     Authenticator
	cookie   CookieConfig
	origins  []string
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	validate *validator.Validate
}

// New creates a Server. A zero Cookie config uses DefaultCookieConfig.
func New(authenticator Authenticator, opts Options) (*Server, error) {
	if authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	cookie := opts.Cookie
	if cookie.Name == "" {
		cookie = DefaultCookieConfig()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	return &Server{
		auth:     authenticator,
		cookie:   cookie,
		origins:  opts.AllowedOrigins,
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   provider.Tracer("authvault/httpapi"),
		validate: validate,
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST "+Prefix+"/signup", "signup", s.handleSignup)
	s.route(mux, "POST "+Prefix+"/login", "login", s.handleLogin)
	s.route(mux, "POST "+Prefix+"/refresh", "refresh", s.handleRefresh)
	s.route(mux, "GET "+Prefix+"/verify", "verify", s.handleVerify)
	s.route(mux, "POST "+Prefix+"/logout", "logout", s.authenticated("logout", s.handleLogout))
	s.route(mux, "PUT "+Prefix+"/change-password", "change_password", s.authenticated("change_password", s.handleChangePassword))
	s.route(mux, "PUT "+Prefix+"/update-profile", "update_profile", s.authenticated("update_profile", s.handleUpdateProfile))
	s.route(mux, "DELETE "+Prefix+"/delete-account", "delete_account", s.authenticated("delete_account", s.handleDeleteAccount))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Route not found", Code: "NOT_FOUND"})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	})

	var h http.Handler = mux
	h = corsHandler.Handler(h)
	h = securityHeaders(h)
	h = s.logRequests(h)
	h = s.recoverPanics(h)
	return h
}

// route registers handler under pattern with a span and request metrics
// labelled by the pattern.
func (s *Server) route(mux *http.ServeMux, pattern, operation string, handler http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, operation, handler))
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}
