package workerpool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
)

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority Priority
	name     string
	retry    *RetryPolicy
}

// WithPriority sets the task priority. It must lie within
// [PriorityLow, PriorityHigh].
func WithPriority(p Priority) SubmitOption {
	return func(o *submitOptions) { o.priority = p }
}

// WithName attaches a name to the task for hooks and logs.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) { o.name = name }
}

// WithRetry re-runs failing work inside the same task according to policy.
func WithRetry(policy RetryPolicy) SubmitOption {
	return func(o *submitOptions) { o.retry = &policy }
}

// RetryPolicy describes exponential backoff between attempts of one task.
type RetryPolicy struct {
	// Attempts is the total number of runs, the first included. Values
	// below 1 mean a single run.
	Attempts int

	// InitialInterval is the delay before the second attempt. Defaults to 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the delay between attempts. Defaults to 10s.
	MaxInterval time.Duration
}

func (rp RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	if rp.InitialInterval > 0 {
		b.InitialInterval = rp.InitialInterval
	}
	if rp.MaxInterval > 0 {
		b.MaxInterval = rp.MaxInterval
	}
	return b
}

// retry calls work until it succeeds, the attempts are used up or ctx is
// done. Panics and interruption are never retried.
func retry[T any](ctx context.Context, rp RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	if rp.Attempts <= 1 {
		return call(ctx)
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := call(ctx)
		if err != nil && (gferrors.IsPanic(err) || errors.Is(err, context.Canceled)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(rp.backOff()),
		backoff.WithMaxTries(uint(rp.Attempts)),
	)
}
