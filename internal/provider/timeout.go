package provider

import (
	"context"
	"errors"
	"time"
)

// CallWithTimeout runs fn with a context bounded by d. It returns as soon as
// d elapses even if fn ignores its context, yielding ErrProviderTimeout. If
// the caller's ctx ends first, ctx.Err() is returned instead.
func CallWithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := fn(callCtx)
		done <- result{val: val, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return zero, ErrProviderTimeout
			}
		}
		return r.val, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrProviderTimeout
	}
}
