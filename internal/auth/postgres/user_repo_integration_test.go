// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

//go:build integration

package postgres_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
		user *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)

		var err error
		user, err = auth.NewUser("Ada", ulid.Make().String()+"@example.com", "hash")
		Expect(err).NotTo(HaveOccurred())
		user.CreatedAt = user.CreatedAt.Truncate(time.Microsecond)
		user.UpdatedAt = user.UpdatedAt.Truncate(time.Microsecond)
		Expect(repo.Create(ctx, user)).To(Succeed())

		DeferCleanup(func() {
			_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID.String())
		})
	})

	It("round-trips a user and finds it by email case-insensitively", func() {
		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Email).To(Equal(user.Email))
		Expect(stored.CreatedAt.Equal(user.CreatedAt)).To(BeTrue())

		byEmail, err := repo.GetByEmail(ctx, strings.ToUpper(user.Email))
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(user.ID))
	})

	It("rejects a second account with the same email in another case", func() {
		dup, err := auth.NewUser("Other", user.Email, "hash")
		Expect(err).NotTo(HaveOccurred())
		dup.Email = strings.ToUpper(user.Email)

		err = repo.Create(ctx, dup)
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))
	})

	It("lets exactly one concurrent rotation win", func() {
		Expect(repo.SetRefreshToken(ctx, user.ID, ptr("current"))).To(Succeed())

		const callers = 16
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			revoked atomic.Int32
		)
		start := make(chan struct{})
		for range callers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				<-start
				err := repo.RotateRefreshToken(ctx, user.ID, "current", ulid.Make().String())
				switch {
				case err == nil:
					winners.Add(1)
				case auth.KindOf(err) == auth.KindTokenFailure:
					revoked.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		Expect(winners.Load()).To(Equal(int32(1)))
		Expect(revoked.Load()).To(Equal(int32(callers - 1)))
	})

	It("serializes lockout updates on the row", func() {
		policy := auth.DefaultLockoutPolicy()

		const failures = 8
		var wg sync.WaitGroup
		for range failures {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := repo.UpdateLockout(ctx, user.ID, func(s auth.LockoutState) (auth.LockoutState, error) {
					return policy.RecordFailure(s), nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.LoginAttempts).To(Equal(failures))
		Expect(stored.LockUntil).NotTo(BeNil())
	})

	It("updates the profile and keeps unspecified fields", func() {
		updated, err := repo.UpdateProfile(ctx, user.ID, auth.ProfileUpdate{Name: ptr("Ada Lovelace")})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Name).To(Equal("Ada Lovelace"))
		Expect(updated.Email).To(Equal(user.Email))
	})

	It("deletes the user", func() {
		Expect(repo.Delete(ctx, user.ID)).To(Succeed())
		_, err := repo.GetByID(ctx, user.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(repo.Delete(ctx, user.ID)).To(MatchError(auth.ErrNotFound))
	})
})

func ptr(s string) *string { return &s }
