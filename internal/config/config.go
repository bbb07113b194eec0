// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package config loads authvault settings from a YAML file, command-line
// flags and the environment, in that order of increasing precedence.
package config

import (
	"net/url"
	"time"
)

// Redacted replaces secret values in rendered configuration.
const Redacted = "[REDACTED]"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" yaml:"server" envPrefix:"AUTHVAULT_SERVER_"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Tokens   TokenConfig    `koanf:"tokens" yaml:"tokens"`
	Password PasswordConfig `koanf:"password" yaml:"password" envPrefix:"AUTHVAULT_PASSWORD_"`
	Lockout  LockoutConfig  `koanf:"lockout" yaml:"lockout" envPrefix:"AUTHVAULT_LOCKOUT_"`
	Cookie   CookieConfig   `koanf:"cookie" yaml:"cookie" envPrefix:"AUTHVAULT_COOKIE_"`
	Log      LogConfig      `koanf:"log" yaml:"log" envPrefix:"AUTHVAULT_LOG_"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics" envPrefix:"AUTHVAULT_METRICS_"`
	Sentry   SentryConfig   `koanf:"sentry" yaml:"sentry" envPrefix:"SENTRY_"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" env:"ADDR" validate:"required,hostname_port"`
	AllowedOrigins  []string      `koanf:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:"," validate:"dive,url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// DatabaseConfig selects and configures the credential store.
type DatabaseConfig struct {
	Driver   string `koanf:"driver" yaml:"driver" env:"AUTHVAULT_DATABASE_DRIVER" validate:"oneof=postgres memory"`
	URL      string `koanf:"url" yaml:"url" env:"DATABASE_URL" validate:"required_if=Driver postgres"`
	MaxConns int32  `koanf:"max_conns" yaml:"max_conns" env:"AUTHVAULT_DATABASE_MAX_CONNS" validate:"gte=0"`
}

// TokenConfig holds the signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string        `koanf:"access_secret" yaml:"access_secret" env:"JWT_ACCESS_SECRET" validate:"required,secret"`
	RefreshSecret string        `koanf:"refresh_secret" yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" validate:"required,secret,nefield=AccessSecret"`
	AccessTTL     time.Duration `koanf:"access_ttl" yaml:"access_ttl" env:"AUTHVAULT_TOKENS_ACCESS_TTL" validate:"gt=0"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl" yaml:"refresh_ttl" env:"AUTHVAULT_TOKENS_REFRESH_TTL" validate:"gt=0,gtfield=AccessTTL"`
	Issuer        string        `koanf:"issuer" yaml:"issuer" env:"AUTHVAULT_TOKENS_ISSUER" validate:"required"`
}

// PasswordConfig selects the hashing algorithm.
type PasswordConfig struct {
	Algorithm  string `koanf:"algorithm" yaml:"algorithm" env:"ALGORITHM" validate:"oneof=bcrypt argon2id"`
	BcryptCost int    `koanf:"bcrypt_cost" yaml:"bcrypt_cost" env:"BCRYPT_COST" validate:"min=4,max=31"`
}

// LockoutConfig tunes the failed-login lockout.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold" yaml:"threshold" env:"THRESHOLD" validate:"min=1"`
	Duration  time.Duration `koanf:"duration" yaml:"duration" env:"DURATION" validate:"gt=0"`
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Secure bool `koanf:"secure" yaml:"secure" env:"SECURE"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" env:"FORMAT" validate:"oneof=json text"`
}

// MetricsConfig controls the metrics and health side server. An empty
// address disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" env:"ADDR" validate:"omitempty,hostname_port"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `koanf:"dsn" yaml:"dsn" env:"DSN" validate:"omitempty,url"`
	Environment string `koanf:"environment" yaml:"environment" env:"ENVIRONMENT"`
}

// Defaults returns the built-in configuration. Secrets have no default.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: DriverPostgres},
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authvault",
		},
		Password: PasswordConfig{Algorithm: "bcrypt", BcryptCost: 10},
		Lockout:  LockoutConfig{Threshold: 5, Duration: 15 * time.Minute},
		Cookie:   CookieConfig{Secure: true},
		Log:      LogConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Sentry:   SentryConfig{Environment: "production"},
	}
}

// Redact returns a copy safe to print: secrets are replaced and the
// database password is masked.
func (c Config) Redact() Config {
	out := c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	if out.Tokens.AccessSecret != "" {
		out.Tokens.AccessSecret = Redacted
	}
	if out.Tokens.RefreshSecret != "" {
		out.Tokens.RefreshSecret = Redacted
	}
	if out.Sentry.DSN != "" {
		out.Sentry.DSN = Redacted
	}
	if out.Database.URL != "" {
		if u, err := url.Parse(out.Database.URL); err == nil && u.Scheme != "" {
			out.Database.URL = u.Redacted()
		} else {
			out.Database.URL = Redacted
		}
	}
	return out
}
