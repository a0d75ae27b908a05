package shared

import (
	"context"
	"errors"
)

// RetryRead runs an idempotent read and retries it once when the collaborator
// failed. Writes must never go through this helper.
func RetryRead[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	val, err := fn(ctx)
	if err == nil || !errors.Is(err, ErrUpstream) {
		return val, err
	}
	if ctx.Err() != nil {
		return val, err
	}
	return fn(ctx)
}
