// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package client

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshCoordinator collapses concurrent refreshes of the same stale
// access token into one request. Every waiter gets the same result.
type refreshCoordinator struct {
	group   singleflight.Group
	timeout time.Duration
	// current returns the access token held right now.
	current func() string
	// fetch performs the refresh and stores the new token before returning.
	fetch func(ctx context.Context) (string, error)
	// usable reports whether a replacement token can be handed out as is.
	// Nil accepts every replacement.
	usable func(token string) bool
}

// Refresh returns a replacement for stale. A caller whose stale token was
// already replaced gets the replacement without another request, unless the
// replacement itself is no longer usable.
//
// The shared request is detached from any single caller's cancellation:
// a caller that gives up returns ctx.Err() while the others still receive
// the outcome.
func (c *refreshCoordinator) Refresh(ctx context.Context, stale string) (string, error) {
	ch := c.group.DoChan(stale, func() (any, error) {
		if cur := c.current(); cur != "" && cur != stale && c.reusable(cur) {
			return cur, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *refreshCoordinator) reusable(token string) bool {
	return c.usable == nil || c.usable(token)
}
