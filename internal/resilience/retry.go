// Package resilience provides the shared retry policy and circuit breaker
// construction used at the boundaries between the query core and its
// collaborators (derived-statistics store, GeoServer upstream).
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the single configurable retry policy applied uniformly at
// boundaries. Zero-valued fields take the defaults below.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3.
	MaxRetries uint64

	// InitialInterval is the first backoff interval. Default: 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff. Default: 2 seconds.
	MaxInterval time.Duration

	// Retryable decides whether an error is worth retrying. Nil retries
	// everything except context cancellation.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the defaults used across the service.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do runs op with exponential backoff until it succeeds, the retries are
// exhausted, the error is not retryable, or the context is canceled.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = 100 * time.Millisecond
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = 2 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
}
