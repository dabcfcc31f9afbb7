package sessions

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds a single store call made from the UI
const DefaultQueryTimeout = 30 * time.Second

// Do runs fn on its own goroutine with a timeout. It returns as soon as ctx
// is cancelled or the deadline passes, even if fn has not finished; fn sees
// the cancellation through its context.
func Do[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, err := fn(queryCtx)
		resultChan <- result{value: value, err: err}
	}()

	select {
	case r := <-resultChan:
		return r.value, r.err
	case <-queryCtx.Done():
		var zero T
		return zero, queryCtx.Err()
	}
}
