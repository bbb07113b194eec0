// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/authvault/authvault/internal/xdg"
)

// minSecretLength matches the token service's minimum HMAC key size.
const minSecretLength = 32

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":              "server.addr",
	"allowed-origins":   "server.allowed_origins",
	"shutdown-timeout":  "server.shutdown_timeout",
	"db-driver":         "database.driver",
	"database-url":      "database.url",
	"db-max-conns":      "database.max_conns",
	"access-ttl":        "tokens.access_ttl",
	"refresh-ttl":       "tokens.refresh_ttl",
	"issuer":            "tokens.issuer",
	"password-algo":     "password.algorithm",
	"bcrypt-cost":       "password.bcrypt_cost",
	"lockout-threshold": "lockout.threshold",
	"lockout-duration":  "lockout.duration",
	"cookie-secure":     "cookie.secure",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"metrics-addr":      "metrics.addr",
	"sentry-env":        "sentry.environment",
}

// RegisterFlags adds a flag for every non-secret setting, defaulting to
// Defaults(). Secrets are read only from the file or the environment.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("addr", d.Server.Addr, "HTTP listen address")
	flags.StringSlice("allowed-origins", d.Server.AllowedOrigins, "CORS origins allowed to send credentials")
	flags.Duration("shutdown-timeout", d.Server.ShutdownTimeout, "graceful shutdown timeout")
	flags.String("db-driver", d.Database.Driver, "credential store (postgres or memory)")
	flags.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	flags.Int32("db-max-conns", d.Database.MaxConns, "maximum pool connections (0 = pgx default)")
	flags.Duration("access-ttl", d.Tokens.AccessTTL, "access token lifetime")
	flags.Duration("refresh-ttl", d.Tokens.RefreshTTL, "refresh token lifetime")
	flags.String("issuer", d.Tokens.Issuer, "token issuer claim")
	flags.String("password-algo", d.Password.Algorithm, "password hash algorithm (bcrypt or argon2id)")
	flags.Int("bcrypt-cost", d.Password.BcryptCost, "bcrypt work factor")
	flags.Int("lockout-threshold", d.Lockout.Threshold, "failed logins before an account locks")
	flags.Duration("lockout-duration", d.Lockout.Duration, "how long a locked account stays locked")
	flags.Bool("cookie-secure", d.Cookie.Secure, "mark the refresh cookie Secure")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("sentry-env", d.Sentry.Environment, "Sentry environment name")
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// File is an explicit config file path. It must exist. When empty the
	// XDG default is used if present.
	File string
	// Flags holds flags registered with RegisterFlags. Nil uses defaults.
	Flags *pflag.FlagSet
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// Load builds the effective configuration: file, then changed flags with
// flag defaults filling gaps, then environment variables. The result is
// validated.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	flags := opts.Flags
	if flags == nil {
		flags = pflag.NewFlagSet("defaults", pflag.ContinueOnError)
		RegisterFlags(flags)
	}
	provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	envOpts := env.Options{}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_MISSING").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", nil //nolint:nilerr // no home directory means no default file
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	return path, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	//nolint:errcheck // registration only fails on an empty tag
	v.RegisterValidation("secret", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) >= minSecretLength
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		return name
	})
	return v
}

// Validate checks every setting. Failures name the offending keys.
func (c Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	keys := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		keys = append(keys, keyOf(fe)+" ("+fe.Tag()+")")
	}
	return oops.Code("CONFIG_INVALID").
		With("fields", keys).
		Errorf("invalid configuration: %s", strings.Join(keys, ", "))
}

// keyOf turns a validator namespace such as "Config.tokens.access_secret"
// into "tokens.access_secret".
func keyOf(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// YAML renders the configuration with secrets redacted.
func (c Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c.Redact())
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return out, nil
}
