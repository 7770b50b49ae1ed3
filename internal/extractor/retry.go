package extractor

import (
	"context"
	"time"
)

// RetryPolicy bounds rate-limit retries: MaxRetries additional attempts,
// each preceded by a fixed Delay. Tests inject a zero-delay policy.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy matches the provider's documented rate-limit window.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 20 * time.Second}
}

// Wait pauses for the policy delay, honoring cancellation.
func (p RetryPolicy) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
