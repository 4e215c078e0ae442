// Package context holds the context helpers prioflow uses to model worker
// interruption.
package context

import (
	"context"
	"errors"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
)

// WithInterrupt returns a child of parent and an interrupt function. Calling
// interrupt cancels the child with gferrors.ErrInterrupted as its cause.
// Calling it more than once is a no-op.
func WithInterrupt(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, func() { cancel(gferrors.ErrInterrupted) }
}

// IsInterrupted returns true if ctx was canceled by an interrupt function
// obtained from WithInterrupt.
func IsInterrupted(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), gferrors.ErrInterrupted)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
