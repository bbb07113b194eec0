// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/auth/memory"
	"github.com/authvault/authvault/internal/auth/postgres"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/httpapi"
	"github.com/authvault/authvault/internal/logging"
	"github.com/authvault/authvault/internal/observability"
	"github.com/authvault/authvault/internal/store"
)

const (
	readinessTimeout  = 2 * time.Second
	sentryFlushWait   = 2 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// serveConfig holds flags that only apply to serve.
type serveConfig struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API under /api/auth. Settings come from the config
file, then flags, then the environment. JWT_ACCESS_SECRET and
JWT_REFRESH_SECRET are required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", false, "apply pending schema migrations before serving")

	return cmd
}

// runServeWithDeps runs the server until a signal arrives or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, sc *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	cfg, err := deps.ConfigLoader(config.LoadOptions{File: configFile, Flags: cmd.Flags()})
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger := logging.SetDefault(logging.Options{
		Service: "authvault",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, version); err != nil {
		return err
	}
	defer observability.FlushSentry(sentryFlushWait)

	logger.Info("starting authvault",
		"addr", cfg.Server.Addr,
		"store", cfg.Database.Driver,
		"password_algorithm", cfg.Password.Algorithm,
	)

	if sc.autoMigrate && cfg.Database.Driver == config.DriverPostgres {
		if err := runAutoMigration(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	credentials, err := deps.StoreFactory(ctx, cfg.Database)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer credentials.Close()

	svc, err := newAuthService(cfg, credentials.Users, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, credentials.Ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	cookie := httpapi.DefaultCookieConfig()
	cookie.Secure = cfg.Cookie.Secure
	cookie.MaxAge = cfg.Tokens.RefreshTTL
	api, err := httpapi.New(svc, httpapi.Options{
		Cookie:         cookie,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("AuthVault listening on %s\n", listener.Addr())
	logger.Info("authvault ready", "addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case serveErr = <-errChan:
		logger.Error("http server failed", "error", serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	if serveErr != nil {
		return oops.Code("SERVE_FAILED").Wrap(serveErr)
	}
	return nil
}

// newAuthService wires the hasher, token service and lockout policy.
func newAuthService(cfg *config.Config, users auth.UserRepository, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Password.Algorithm, cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewService(users, hasher, tokens,
		auth.WithLogger(logger),
		auth.WithLockoutPolicy(auth.LockoutPolicy{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		}),
	)
}

// openStore opens the configured credential store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*CredentialStore, error) {
	if cfg.Driver == config.DriverMemory {
		slog.Warn("using in-memory credential store; accounts are lost on exit")
		return &CredentialStore{
			Users: memory.NewUserStore(),
			Ready: func() bool { return true },
			Close: func() {},
		}, nil
	}

	pool, err := store.Connect(ctx, cfg.URL, store.ConnectOptions{MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database")
	return &CredentialStore{
		Users: postgres.NewUserRepository(pool),
		Ready: store.ReadinessCheck(pool, readinessTimeout),
		Close: pool.Close,
	}, nil
}

func runAutoMigration(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	slog.Info("applying schema migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

func stopObservability(obsServer ObservabilityServer) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
