package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
)

// RetryPolicy bounds how often a DependencyError is retried
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
}

func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{Attempts: cfg.Attempts, InitialBackoff: cfg.InitialBackoff, MaxBackoff: cfg.MaxBackoff}
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return p
}

// WithRetry runs fn until it succeeds, fails with a non-retryable error, the
// attempts are used up or ctx is done. Backoff doubles up to MaxBackoff.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	backoff := policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= policy.Attempts {
			return result, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
}
