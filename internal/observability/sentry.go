// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/samber/oops"
)

// InitSentry enables error reporting. An empty DSN leaves it disabled and
// every Capture call becomes a no-op.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return oops.Code("SENTRY_INIT_FAILED").With("environment", environment).Wrap(err)
	}
	return nil
}

// FlushSentry waits up to timeout for queued events to be sent.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError reports err with its oops code and context as tags and extras.
func CaptureError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if oopsErr, ok := oops.AsOops(err); ok {
			if code, ok := any(oopsErr.Code()).(string); ok && code != "" {
				scope.SetTag("code", code)
			}
			for k, v := range oopsErr.Context() {
				scope.SetExtra(k, v)
			}
		}
		hub.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value.
func CapturePanic(ctx context.Context, recovered any, stack []byte) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("panic", recovered)
		scope.SetExtra("stack", string(stack))
		hub.CaptureMessage("panic in request")
	})
}
