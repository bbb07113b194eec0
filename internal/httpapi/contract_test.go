// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/auth/memory"
	"github.com/authvault/authvault/internal/httpapi"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type reply struct {
	status int
	header http.Header
	body   map[string]any
}

func (r reply) str(key string) string {
	s, _ := r.body[key].(string)
	return s
}

func (r reply) num(key string) (int, bool) {
	n, ok := r.body[key].(float64)
	return int(n), ok
}

type apiClient struct {
	http *http.Client
	base *url.URL
}

func newAPIClient(baseURL string) *apiClient {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	base, err := url.Parse(baseURL)
	Expect(err).NotTo(HaveOccurred())
	return &apiClient{http: &http.Client{Jar: jar}, base: base}
}

func (c *apiClient) call(method, path, token string, body any) reply {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base.String()+path, payload)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := reply{status: resp.StatusCode, header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out.body)).To(Succeed(), string(raw))
	}
	return out
}

// cookieURL is the absolute URL the refresh cookie is scoped to.
func (c *apiClient) cookieURL() *url.URL {
	return c.base.ResolveReference(&url.URL{Path: httpapi.Prefix})
}

func (c *apiClient) refreshCookie() string {
	for _, ck := range c.http.Jar.Cookies(c.cookieURL()) {
		if ck.Name == "refreshToken" {
			return ck.Value
		}
	}
	return ""
}

func (c *apiClient) setRefreshCookie(value string) {
	c.http.Jar.SetCookies(c.cookieURL(), []*http.Cookie{{
		Name:  "refreshToken",
		Value: value,
		Path:  httpapi.Prefix,
	}})
}

var _ = Describe("auth HTTP contract", func() {
	const password = "correct-horse"

	var (
		clk    *clock
		server *httptest.Server
		client *apiClient
	)

	BeforeEach(func() {
		clk = &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

		hasher, err := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		tokens, err := auth.NewTokenService(auth.TokenConfig{
			AccessSecret:  []byte(strings.Repeat("a", 32)),
			RefreshSecret: []byte(strings.Repeat("r", 32)),
			Issuer:        "authvault-contract",
		}, auth.WithTokenClock(clk.Now))
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc, err := auth.NewService(memory.NewUserStore(), hasher, tokens,
			auth.WithLogger(logger),
			auth.WithLockoutPolicy(auth.LockoutPolicy{Now: clk.Now}),
		)
		Expect(err).NotTo(HaveOccurred())

		cookie := httpapi.DefaultCookieConfig()
		cookie.Secure = false
		api, err := httpapi.New(svc, httpapi.Options{Cookie: cookie, Logger: logger})
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(api.Handler())
		DeferCleanup(server.Close)
		client = newAPIClient(server.URL)
	})

	signup := func(email string) reply {
		r := client.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"name": "Ada", "email": email, "password": password,
		})
		Expect(r.status).To(Equal(http.StatusCreated), "%v", r.body)
		return r
	}

	login := func(email, pw string) reply {
		return client.call(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": email, "password": pw,
		})
	}

	Describe("signup", func() {
		It("returns an access token and sets the refresh cookie", func() {
			r := signup("ada@example.com")
			Expect(r.str("accessToken")).NotTo(BeEmpty())
			Expect(r.body).NotTo(HaveKey("refreshToken"))
			Expect(client.refreshCookie()).NotTo(BeEmpty())
		})

		It("rejects an email already registered in any case", func() {
			signup("ada@example.com")
			r := client.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
				"name": "Imposter", "email": "ADA@Example.com", "password": password,
			})
			Expect(r.status).To(Equal(http.StatusConflict))
			Expect(r.str("code")).To(Equal(auth.CodeDuplicateEmail))
		})

		It("rejects a short password", func() {
			r := client.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
				"name": "Ada", "email": "ada@example.com", "password": "short",
			})
			Expect(r.status).To(Equal(http.StatusBadRequest))
			Expect(r.str("code")).To(Equal(auth.CodeWeakPassword))
		})
	})

	Describe("login and verify", func() {
		It("round-trips the subject", func() {
			created := signup("ada@example.com")
			user := created.body["user"].(map[string]any)

			r := login("ada@example.com", password)
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.str("message")).To(Equal("Login successful"))

			v := client.call(http.MethodGet, "/api/auth/verify", r.str("accessToken"), nil)
			Expect(v.status).To(Equal(http.StatusOK))
			Expect(v.body["user"].(map[string]any)["id"]).To(Equal(user["id"]))
		})

		It("reports attempts left and then locks the account", func() {
			signup("ada@example.com")

			for want := 4; want >= 1; want-- {
				r := login("ada@example.com", "wrong-password")
				Expect(r.status).To(Equal(http.StatusUnauthorized))
				left, ok := r.num("attemptsLeft")
				Expect(ok).To(BeTrue())
				Expect(left).To(Equal(want))
			}

			r := login("ada@example.com", "wrong-password")
			Expect(r.status).To(Equal(http.StatusUnauthorized))
			left, _ := r.num("attemptsLeft")
			Expect(left).To(BeZero())

			r = login("ada@example.com", password)
			Expect(r.status).To(Equal(http.StatusLocked))
			Expect(r.str("code")).To(Equal(auth.CodeAccountLocked))
			Expect(r.header.Get("Retry-After")).To(Equal("900"))
			minutes, _ := r.num("retryAfterMinutes")
			Expect(minutes).To(Equal(15))

			clk.Advance(10 * time.Minute)
			r = login("ada@example.com", "wrong-password")
			Expect(r.status).To(Equal(http.StatusLocked))
			minutes, _ = r.num("retryAfterMinutes")
			Expect(minutes).To(Equal(5), "a failure during the lock must not extend it")

			clk.Advance(5*time.Minute + time.Second)
			r = login("ada@example.com", password)
			Expect(r.status).To(Equal(http.StatusOK))

			r = login("ada@example.com", "wrong-password")
			left, _ = r.num("attemptsLeft")
			Expect(left).To(Equal(4), "a successful login resets the counter")
		})

		It("does not distinguish unknown emails", func() {
			r := login("nobody@example.com", password)
			Expect(r.status).To(Equal(http.StatusUnauthorized))
			Expect(r.str("code")).To(Equal(auth.CodeInvalidCredentials))
			Expect(r.body).NotTo(HaveKey("attemptsLeft"))
		})

		It("distinguishes an expired access token from a forged one", func() {
			r := signup("ada@example.com")
			token := r.str("accessToken")

			v := client.call(http.MethodGet, "/api/auth/verify", token+"x", nil)
			Expect(v.str("code")).To(Equal(auth.CodeInvalidToken))

			clk.Advance(16 * time.Minute)
			v = client.call(http.MethodGet, "/api/auth/verify", token, nil)
			Expect(v.status).To(Equal(http.StatusUnauthorized))
			Expect(v.str("code")).To(Equal(auth.CodeTokenExpired))

			v = client.call(http.MethodGet, "/api/auth/verify", "", nil)
			Expect(v.str("code")).To(Equal(auth.CodeNoToken))
		})
	})

	Describe("refresh", func() {
		It("rotates the cookie and revokes the previous token", func() {
			signup("ada@example.com")
			original := client.refreshCookie()

			clk.Advance(time.Second)
			r := client.call(http.MethodPost, "/api/auth/refresh", "", nil)
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.str("accessToken")).NotTo(BeEmpty())
			rotated := client.refreshCookie()
			Expect(rotated).NotTo(BeEmpty())
			Expect(rotated).NotTo(Equal(original))

			client.setRefreshCookie(original)
			r = client.call(http.MethodPost, "/api/auth/refresh", "", nil)
			Expect(r.status).To(Equal(http.StatusUnauthorized))
			Expect(r.str("code")).To(Equal(auth.CodeRefreshTokenRevoked))
			Expect(client.refreshCookie()).To(BeEmpty(), "failed refresh clears the cookie")
		})

		It("requires a cookie", func() {
			r := client.call(http.MethodPost, "/api/auth/refresh", "", nil)
			Expect(r.status).To(Equal(http.StatusUnauthorized))
			Expect(r.str("code")).To(Equal(auth.CodeNoToken))
		})

		It("rejects a garbage cookie as invalid", func() {
			client.setRefreshCookie("not-a-jwt")
			r := client.call(http.MethodPost, "/api/auth/refresh", "", nil)
			Expect(r.str("code")).To(Equal(auth.CodeInvalidRefreshToken))
		})

		It("lets exactly one of many concurrent refreshes win", func() {
			signup("ada@example.com")
			cookie := client.refreshCookie()

			const racers = 8
			var (
				wg      sync.WaitGroup
				wins    atomic.Int32
				revoked atomic.Int32
			)
			start := make(chan struct{})
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					<-start
					req, err := http.NewRequest(http.MethodPost, server.URL+"/api/auth/refresh", nil)
					Expect(err).NotTo(HaveOccurred())
					req.AddCookie(&http.Cookie{Name: "refreshToken", Value: cookie})
					resp, err := http.DefaultClient.Do(req)
					Expect(err).NotTo(HaveOccurred())
					_ = resp.Body.Close()
					switch resp.StatusCode {
					case http.StatusOK:
						wins.Add(1)
					case http.StatusUnauthorized:
						revoked.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			Expect(wins.Load()).To(Equal(int32(1)))
			Expect(revoked.Load()).To(Equal(int32(racers - 1)))
		})
	})

	Describe("authenticated routes", func() {
		var token string

		BeforeEach(func() {
			token = signup("ada@example.com").str("accessToken")
		})

		It("logs out idempotently and revokes the refresh token", func() {
			cookie := client.refreshCookie()

			Expect(client.call(http.MethodPost, "/api/auth/logout", token, nil).status).To(Equal(http.StatusOK))
			Expect(client.refreshCookie()).To(BeEmpty())
			Expect(client.call(http.MethodPost, "/api/auth/logout", token, nil).status).To(Equal(http.StatusOK))

			client.setRefreshCookie(cookie)
			r := client.call(http.MethodPost, "/api/auth/refresh", "", nil)
			Expect(r.str("code")).To(Equal(auth.CodeRefreshTokenRevoked))
		})

		It("changes the password", func() {
			r := client.call(http.MethodPut, "/api/auth/change-password", token, map[string]string{
				"currentPassword": "wrong-password", "newPassword": "new-password",
			})
			Expect(r.status).To(Equal(http.StatusUnauthorized))
			Expect(r.str("code")).To(Equal(auth.CodeIncorrectPassword))

			r = client.call(http.MethodPut, "/api/auth/change-password", token, map[string]string{
				"currentPassword": password, "newPassword": "new-password",
			})
			Expect(r.status).To(Equal(http.StatusOK))

			Expect(login("ada@example.com", password).status).To(Equal(http.StatusUnauthorized))
			Expect(login("ada@example.com", "new-password").status).To(Equal(http.StatusOK))
		})

		It("updates the profile and refuses a taken email", func() {
			other := newAPIClient(server.URL)
			r := other.call(http.MethodPost, "/api/auth/signup", "", map[string]string{
				"name": "Grace", "email": "grace@example.com", "password": password,
			})
			Expect(r.status).To(Equal(http.StatusCreated))

			r = client.call(http.MethodPut, "/api/auth/update-profile", token, map[string]string{"email": "GRACE@example.com"})
			Expect(r.status).To(Equal(http.StatusConflict))

			r = client.call(http.MethodPut, "/api/auth/update-profile", token, map[string]string{"name": "Ada L."})
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body["user"].(map[string]any)["name"]).To(Equal("Ada L."))

			r = client.call(http.MethodPut, "/api/auth/update-profile", token, map[string]string{})
			Expect(r.status).To(Equal(http.StatusBadRequest))
		})

		It("deletes the account after which the token names no user", func() {
			r := client.call(http.MethodDelete, "/api/auth/delete-account", token, map[string]string{"password": "wrong-password"})
			Expect(r.status).To(Equal(http.StatusUnauthorized))

			r = client.call(http.MethodDelete, "/api/auth/delete-account", token, map[string]string{"password": password})
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(client.refreshCookie()).To(BeEmpty())

			v := client.call(http.MethodGet, "/api/auth/verify", token, nil)
			Expect(v.status).To(Equal(http.StatusUnauthorized))
			Expect(v.str("code")).To(Equal(auth.CodeUserNotFound))
		})
	})
})
