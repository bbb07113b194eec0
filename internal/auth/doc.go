// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

// Package auth implements token-based authentication for AuthVault.
//
// # Domain Types
//
// User records are created with NewUser, which normalizes the name and email.
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated users.
//
// # Building Blocks
//
//   - PasswordHasher - bcrypt (default) or argon2id hashing
//   - TokenService - signed access and refresh tokens with separate secrets
//   - LockoutPolicy - per-account failure counting and lock windows
//
// # Service
//
// Service combines the building blocks into signup, login, refresh, verify,
// logout, change-password, update-profile and delete-account operations.
// Every failure it returns is an oops error whose code belongs to the
// taxonomy in errors.go; use KindOf to classify it.
package auth
