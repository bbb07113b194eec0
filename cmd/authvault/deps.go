// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package main

import (
	"context"
	"net"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader builds the effective configuration.
	// Default: config.Load
	ConfigLoader func(opts config.LoadOptions) (*config.Config, error)

	// StoreFactory opens the credential store.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg config.DatabaseConfig) (*CredentialStore, error)

	// MigratorFactory opens a schema migrator for --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// CredentialStore is an opened user repository with its health probe.
type CredentialStore struct {
	Users auth.UserRepository
	Ready observability.ReadinessChecker
	Close func()
}

// AutoMigrator is the part of store.Migrator used on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
