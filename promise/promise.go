// Package promise provides a small, goroutine-backed promise with the two
// callback continuation primitive the rest of wirez attaches to.
//
// A Promise is Pending until it settles, then Fulfilled with a value or
// Rejected with an error. It settles exactly once; later attempts are
// ignored. Continuations attached with Then run on their own goroutine once
// the promise settles and produce a derived promise holding the callback's
// result. A panicking callback rejects the derived promise with a
// *PanicError.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrNilReason is the rejection reason used when Reject is given a nil error.
var ErrNilReason = errors.New("promise rejected with nil reason")

// State is the settlement state of a Promise.
type State int

// Promise states.
const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// PanicError carries the value a callback panicked with.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("promise callback panicked: %v", p.Value)
}

// Promise is the eventual result of asynchronous work.
type Promise struct {
	ctx   context.Context
	done  chan struct{}
	val   any
	err   error
	state State
	once  sync.Once
	mu    sync.RWMutex
}

func newPromise(ctx context.Context) *Promise {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Promise{ctx: ctx, done: make(chan struct{})}
}

func (p *Promise) settle(val any, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		if err != nil {
			p.err = err
			p.state = Rejected
		} else {
			p.val = val
			p.state = Fulfilled
		}
		p.mu.Unlock()
		close(p.done)
	})
}

// New returns a pending promise with the functions that settle it.
func New(ctx context.Context) (p *Promise, resolve func(any), reject func(error)) {
	p = newPromise(ctx)
	resolve = func(v any) { p.settle(v, nil) }
	reject = func(err error) {
		if err == nil {
			err = ErrNilReason
		}
		p.settle(nil, err)
	}
	return p, resolve, reject
}

// Go runs fn on a new goroutine and settles the returned promise with its
// result. A panic in fn rejects the promise with a *PanicError.
func Go(ctx context.Context, fn func(context.Context) (any, error)) *Promise {
	p := newPromise(ctx)
	go func() {
		p.settle(call(p.ctx, fn))
	}()
	return p
}

// Resolve returns a promise already fulfilled with v.
func Resolve(ctx context.Context, v any) *Promise {
	p, resolve, _ := New(ctx)
	resolve(v)
	return p
}

// Reject returns a promise already rejected with err.
func Reject(ctx context.Context, err error) *Promise {
	p, _, reject := New(ctx)
	reject(err)
	return p
}

// Delay returns a promise fulfilled with v once d has elapsed on clock, or
// rejected with the context error if ctx ends first. A nil clock uses the
// real clock.
func Delay(ctx context.Context, clock clockz.Clock, d time.Duration, v any) *Promise {
	if clock == nil {
		clock = clockz.RealClock
	}
	p := newPromise(ctx)
	go func() {
		select {
		case <-clock.After(d):
			p.settle(v, nil)
		case <-p.ctx.Done():
			p.settle(nil, p.ctx.Err())
		}
	}()
	return p
}

func call(ctx context.Context, fn func(context.Context) (any, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

// Then attaches continuations for both outcomes and returns the derived
// promise. Exactly one of the callbacks runs. A nil onFulfilled passes the
// value through; a nil onRejected passes the error through.
func (p *Promise) Then(
	onFulfilled func(ctx context.Context, val any) (any, error),
	onRejected func(ctx context.Context, err error) (any, error),
) *Promise {
	next := newPromise(p.ctx)
	go func() {
		<-p.done
		val, err := p.Res()
		switch {
		case err == nil && onFulfilled != nil:
			next.settle(call(p.ctx, func(ctx context.Context) (any, error) {
				return onFulfilled(ctx, val)
			}))
		case err != nil && onRejected != nil:
			next.settle(call(p.ctx, func(ctx context.Context) (any, error) {
				return onRejected(ctx, err)
			}))
		default:
			next.settle(val, err)
		}
	}()
	return next
}

// Catch attaches a continuation for rejection only.
func (p *Promise) Catch(onRejected func(ctx context.Context, err error) (any, error)) *Promise {
	return p.Then(nil, onRejected)
}

// Done returns a channel closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise settles.
func (p *Promise) Wait() {
	<-p.done
}

// Res waits for the promise and returns its value and error.
func (p *Promise) Res() (any, error) {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val, p.err
}

// State returns the current state without waiting.
func (p *Promise) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}
