// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// MinSecretLength is the minimum signing secret size in bytes.
	MinSecretLength = 32
)

// TokenUse distinguishes access tokens from refresh tokens.
type TokenUse string

// Token uses.
const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// Verification outcomes. ErrTokenExpired means the token was correctly
// signed and well formed but past its expiry.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

var errMalformedClaims = errors.New("malformed claims")

// Claims is the fixed claim set carried by every token.
type Claims struct {
	Use TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// Validate is called by the parser after the registered claims checks.
func (c Claims) Validate() error {
	if c.Use != TokenUseAccess && c.Use != TokenUseRefresh {
		return errMalformedClaims
	}
	if _, err := ulid.Parse(c.Subject); err != nil {
		return errMalformedClaims
	}
	if c.ID == "" || c.IssuedAt == nil {
		return errMalformedClaims
	}
	return nil
}

// UserID returns the subject as a ULID. Validate guarantees it parses.
func (c *Claims) UserID() ulid.ULID {
	id, _ := ulid.Parse(c.Subject)
	return id
}

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenService issues and verifies signed tokens.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the clock used for issuing and verifying.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService validates cfg and creates a TokenService.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access secret must be at least %d bytes", MinSecretLength)
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("refresh secret must be at least %d bytes", MinSecretLength)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}

	s := &TokenService{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccessToken signs a short-lived access token for userID.
func (s *TokenService) IssueAccessToken(userID ulid.ULID) (string, error) {
	return s.issue(userID, TokenUseAccess)
}

// IssueRefreshToken signs a long-lived refresh token for userID.
func (s *TokenService) IssueRefreshToken(userID ulid.ULID) (string, error) {
	return s.issue(userID, TokenUseRefresh)
}

// IssuePair signs a fresh access and refresh token.
func (s *TokenService) IssuePair(userID ulid.ULID) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(userID ulid.ULID, use TokenUse) (string, error) {
	secret, ttl := s.params(use)
	now := s.now()
	claims := Claims{
		Use: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("use", string(use)).Wrap(err)
	}
	return signed, nil
}

// VerifyAccessToken verifies an access token.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.Verify(token, TokenUseAccess)
}

// VerifyRefreshToken verifies a refresh token.
func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.Verify(token, TokenUseRefresh)
}

// Verify checks the signature with the secret for use, then expiry.
// It returns ErrTokenExpired or ErrTokenInvalid on failure.
func (s *TokenService) Verify(token string, use TokenUse) (*Claims, error) {
	secret, _ := s.params(use)

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		// The parser checks the signature before claims, so an expiry error
		// here always belongs to a correctly signed token.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, errMalformedClaims) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Use != use {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) params(use TokenUse) ([]byte, time.Duration) {
	if use == TokenUseRefresh {
		return s.cfg.RefreshSecret, s.cfg.RefreshTTL
	}
	return s.cfg.AccessSecret, s.cfg.AccessTTL
}

// HashRefreshToken returns the hex SHA-256 digest under which a refresh
// token is stored.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
