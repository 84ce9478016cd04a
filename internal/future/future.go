// Package future provides a resolve-once result handle that many goroutines
// can observe. A Future is settled exactly once, with either a value or an
// error, and every observer sees that same outcome. The function behind a
// Future never runs more than once regardless of how many callers await it.
package future

import (
	"context"
	"fmt"
	"sync"
)

// Future is a handle to a value that is either still being computed or
// already computed.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn in a new goroutine and returns a Future for its result.
// A panic inside fn settles the Future with an error instead of crashing
// the process.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.settle(zero, fmt.Errorf("future: panic: %v", r))
			}
		}()
		v, err := fn(ctx)
		f.settle(v, err)
	}()
	return f
}

// Resolved returns a Future that is already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.settle(v, nil)
	return f
}

// Failed returns a Future that is already settled with err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.settle(zero, err)
	return f
}

// Then derives a new Future that waits for f and applies fn to its value.
// An error from f is passed through without calling fn.
func Then[T, U any](ctx context.Context, f *Future[T], fn func(ctx context.Context, v T) (U, error)) *Future[U] {
	return Go(ctx, func(ctx context.Context) (U, error) {
		v, err := f.Await(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(ctx, v)
	})
}

func (f *Future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Await blocks until the Future settles or ctx is done. Returning early
// because of ctx does not affect the Future or its other observers.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the Future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the Future has a value or an error.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Peek returns the outcome without blocking. ok is false while the Future
// is still pending.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	if !f.Settled() {
		return v, nil, false
	}
	return f.val, f.err, true
}
