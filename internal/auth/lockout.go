// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package auth

import (
	"math"
	"time"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long a lock lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutState is the per-account failure counter and lock expiry.
type LockoutState struct {
	Attempts  int
	LockUntil *time.Time
}

// LockoutPolicy drives the Open/Locked state machine for an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultLockoutPolicy returns a policy with the default threshold and duration.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

func (p LockoutPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p LockoutPolicy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultLockoutThreshold
	}
	return p.Threshold
}

func (p LockoutPolicy) duration() time.Duration {
	if p.Duration <= 0 {
		return DefaultLockoutDuration
	}
	return p.Duration
}

// IsLocked reports whether the lock expiry is strictly in the future.
// An elapsed lock counts as open even though the counter is not cleared.
func (p LockoutPolicy) IsLocked(s LockoutState) bool {
	return s.LockUntil != nil && s.LockUntil.After(p.now())
}

// RecordFailure counts a failed attempt. The lock is set only by the attempt
// that reaches the threshold while open; failures during an active lock
// increment the counter without extending the window.
func (p LockoutPolicy) RecordFailure(s LockoutState) LockoutState {
	if p.IsLocked(s) {
		s.Attempts++
		return s
	}
	s.Attempts++
	if s.Attempts >= p.threshold() {
		until := p.now().Add(p.duration())
		s.LockUntil = &until
	}
	return s
}

// RecordSuccess resets the state to open.
func (p LockoutPolicy) RecordSuccess(LockoutState) LockoutState {
	return LockoutState{}
}

// Remaining returns the time left on an active lock, or zero.
func (p LockoutPolicy) Remaining(s LockoutState) time.Duration {
	if !p.IsLocked(s) {
		return 0
	}
	return s.LockUntil.Sub(p.now())
}

// RemainingMinutes returns Remaining rounded up to whole minutes.
func (p LockoutPolicy) RemainingMinutes(s LockoutState) int {
	remaining := p.Remaining(s)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// AttemptsLeft returns how many further failures are allowed before a lock.
func (p LockoutPolicy) AttemptsLeft(s LockoutState) int {
	left := p.threshold() - s.Attempts
	if left < 0 {
		return 0
	}
	return left
}
