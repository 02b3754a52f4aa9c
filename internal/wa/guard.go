package wa

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when an adapter call outlives its budget.
	ErrTimeout = errors.New("adapter call timed out")
	// ErrNotReady is returned when the session cannot serve calls yet.
	ErrNotReady = errors.New("whatsapp session not ready")
)

// Guard serializes adapter calls and bounds each one with a timeout.
// A call that times out keeps the guard until it actually returns, so the
// next caller never overlaps a still-running operation.
type Guard struct {
	sem     chan struct{}
	timeout time.Duration
}

// NewGuard returns a guard of width 1. timeout <= 0 disables the budget.
func NewGuard(timeout time.Duration) *Guard {
	return &Guard{sem: make(chan struct{}, 1), timeout: timeout}
}

// Do runs fn under the guard.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

type outcome[T any] struct {
	val T
	err error
}

// Run runs fn under g and returns its result, or ErrTimeout once the budget is spent.
func Run[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, g.ctxErr(ctx)
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() { <-g.sem }()
		v, err := fn(ctx)
		done <- outcome[T]{v, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return zero, g.ctxErr(ctx)
		}
		return out.val, out.err
	case <-ctx.Done():
		return zero, g.ctxErr(ctx)
	}
}

func (g *Guard) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
	}
	return ctx.Err()
}
