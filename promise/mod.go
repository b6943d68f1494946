// Package promise implements placeholders for results that are produced by
// another goroutine.
//
// A promise is settled exactly once, either resolved with a value or rejected
// with an error. Later attempts to settle it are ignored. Waiting for a
// promise is the only place where a caller suspends.
package promise

import (
	"context"
	"sync"
)

// Promise is a placeholder for a value of type T.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns a pending promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{
		done: make(chan struct{}),
	}
}

// Resolved returns a promise already resolved with the value.
func Resolved[T any](value T) *Promise[T] {
	p := New[T]()
	p.Resolve(value)

	return p
}

// Rejected returns a promise already rejected with the error.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)

	return p
}

// Resolve settles the promise with the value. It returns false if the promise
// was already settled.
func (p *Promise[T]) Resolve(value T) bool {
	return p.settle(value, nil)
}

// Reject settles the promise with the error. It returns false if the promise
// was already settled.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.settle(zero, err)
}

// Done returns a channel that is closed when the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// IsSettled returns true if the promise has been resolved or rejected.
func (p *Promise[T]) IsSettled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await waits for the promise to be settled and returns its outcome. It
// returns the context error if the context is done first.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Promise[T]) settle(value T, err error) bool {
	settled := false

	p.once.Do(func() {
		p.value = value
		p.err = err
		settled = true

		close(p.done)
	})

	return settled
}
