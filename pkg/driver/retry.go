package driver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// RetryPolicy bounds the retry loop around a driver Apply.
type RetryPolicy struct {
	// MaxAttempts caps the total number of Apply calls, including the
	// first. Zero means a single attempt with no retries.
	MaxAttempts int

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// MaxInterval caps the exponential growth of the delay.
	MaxInterval time.Duration
}

// DefaultRetryPolicy allows three attempts with short exponential delays.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// ApplyWithRetry calls d.Apply under the policy. Errors marked
// non-retryable stop the loop immediately; retryable errors are retried
// with exponential backoff until the attempt budget runs out. The last
// error is returned when no attempt succeeds.
func ApplyWithRetry(ctx context.Context, d Driver, req ApplyRequest, policy RetryPolicy) (Outputs, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		outputs, err := d.Apply(ctx, req)
		if err == nil {
			return outputs, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		logging.Warn("retrying resource apply",
			"resource", req.Resource,
			"kind", req.Kind,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error())

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeCancelled, "apply cancelled during retry backoff", ctx.Err())
		}
	}

	return nil, lastErr
}
