// Package future provides a small single-assignment result handle for
// asynchronous storage operations.
//
// A Future is completed exactly once, either with a value or an error.
// Completion closes the Done channel, so any number of goroutines can wait on
// it, and continuations registered with OnComplete, Then or Map run without
// blocking the caller that registers them.
//
//	f := future.Go(func() (int64, error) { return store.allocate() })
//	g := future.Map(f, func(id int64) (string, error) { return fmt.Sprint(id), nil })
//	s, err := g.Get(ctx)
package future

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error

	mu        sync.Mutex
	callbacks []func(T, error)
}

// New returns an incomplete future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already completed with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v)
	return f
}

// Failed returns a future already failed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Go runs fn on a new goroutine and completes the returned future with its
// result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := fn()
		f.complete(v, err)
	}()
	return f
}

// Complete sets the value. It reports false if the future was already done.
func (f *Future[T]) Complete(v T) bool { return f.complete(v, nil) }

// Fail sets the error. It reports false if the future was already done.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		won = true
		f.mu.Lock()
		f.val, f.err = v, err
		cbs := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()
		for _, cb := range cbs {
			cb(v, err)
		}
	})
	return won
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for completion or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the result without waiting; ok is false while pending.
func (f *Future[T]) TryGet() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// OnComplete registers fn to run with the result. If the future is already
// complete fn runs inline on the calling goroutine; otherwise it runs on the
// goroutine that completes the future.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.val, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Then chains a continuation that starts another asynchronous step. A failure
// of f skips fn and fails the result with the same error.
func Then[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out := New[U]()
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		fn(v).OnComplete(func(u U, err error) { out.complete(u, err) })
	})
	return out
}

// Map transforms the value of f once it completes.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U]()
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		out.complete(fn(v))
	})
	return out
}

// MapErr rewrites the error of a failed future, leaving values untouched.
func MapErr[T any](f *Future[T], fn func(error) error) *Future[T] {
	out := New[T]()
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.Fail(fn(err))
			return
		}
		out.Complete(v)
	})
	return out
}
