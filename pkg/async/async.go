package async

import (
	"context"
	"sync"
	"time"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	once   sync.Once
	done   chan struct{}
}

// Resolver completes a Future. Only the first call has an effect; it reports
// whether this call was the one that completed the Future.
type Resolver[U any] func(U, error) bool

// NewPromise returns a pending Future and the function that completes it.
func NewPromise[U any]() (*Future[U], Resolver[U]) {
	f := &Future[U]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns an already completed Future.
func Resolved[U any](v U, err error) *Future[U] {
	f, resolve := NewPromise[U]()
	resolve(v, err)
	return f
}

func (f *Future[U]) resolve(v U, err error) bool {
	first := false
	f.once.Do(func() {
		f.result = v
		f.err = err
		first = true
		close(f.done)
	})
	return first
}

// Await waits for the Future to complete and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout is Await bounded by timeout; it returns ErrTimeout when
// the Future is still pending after timeout.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done is closed once the Future completes.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// IsComplete reports whether the Future has completed, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async runs fn in a new goroutine and returns its Future. A context that is
// already canceled completes the Future with ctx.Err() without calling fn.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f, resolve := NewPromise[U]()

	go func() {
		if err := ctx.Err(); err != nil {
			var zero U
			resolve(zero, err)
			return
		}
		resolve(fn(ctx, param))
	}()

	return f
}

// WaitAll waits for every future and returns their results in order, with
// the first error encountered.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))

	var firstErr error
	for i, future := range futures {
		result, err := future.Await()
		results[i] = result
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}
