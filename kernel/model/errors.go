package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled marks work stopped by the caller. It is never retried and
// callers should not present it as a failure.
var ErrCanceled = errors.New("model: canceled")

// Canceled wraps cause (usually ctx.Err()) so that errors.Is matches both
// ErrCanceled and cause.
func Canceled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	if errors.Is(cause, ErrCanceled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// IsCanceled reports whether err stems from cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
