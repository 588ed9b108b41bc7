package reconcile

import (
	"context"
	"time"

	"github.com/smartexpense/gatewayctl/internal/gateway"
)

// withRetry runs fn under a per-call timeout, retrying transient failures a
// bounded number of times with linear backoff. Every other failure class is
// returned immediately: NotFound, Conflict and PermissionDenied do not get
// better by waiting, and AlreadyExists is handled inside the configurator.
func withRetry(ctx context.Context, attempts int, backoff, timeout time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !gateway.Retryable(err) || attempt >= attempts {
			return err
		}
		select {
		case <-time.After(backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
