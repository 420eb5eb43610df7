// Package future implements single-shot value/error cells (futures) and
// their producer-side view (promises), with chained continuations.
package future

import (
	"sync"
	"time"

	"github.com/edgekernel/core/pkg/coreerr"
)

type state int32

const (
	stateUnset state = iota
	stateValue
	stateError
	stateCancelled
)

// Future is a single-shot cell holding exactly one of
// {unset, value, error, cancelled}. The transition out of unset is terminal
// and observable.
type Future struct {
	mu        sync.Mutex
	state     state
	value     any
	err       error
	callbacks []func(any, error)
}

func newFuture() *Future {
	return &Future{}
}

// Promise is the producer-side view of a Future. A promise may be fulfilled
// exactly once; every attempt after the first fails with
// coreerr.PromiseDoubleWriteError.
type Promise struct {
	f *Future
}

// NewPromise creates an unset promise/future pair.
func NewPromise() *Promise {
	return &Promise{f: newFuture()}
}

// Future returns the consumer-side view. Consumers cannot fulfil it: there
// is no downcast back to Promise.
func (p *Promise) Future() *Future { return p.f }

func (p *Promise) settle(s state, value any, err error) error {
	f := p.f
	f.mu.Lock()
	if f.state != stateUnset {
		f.mu.Unlock()
		return coreerr.New(coreerr.PromiseDoubleWriteError, "promise already settled")
	}
	f.state = s
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	// Per spec.md §4.7, a callback registered while unset runs "on the
	// thread that fulfils the promise, synchronously inside the fulfilment
	// call" — so we invoke them here, after releasing the lock but still on
	// this goroutine, in registration order.
	for _, cb := range callbacks {
		cb(value, err)
	}
	return nil
}

// SetValue fulfils the promise with v. Exactly one of SetValue/SetError/
// Cancel may succeed.
func (p *Promise) SetValue(v any) error { return p.settle(stateValue, v, nil) }

// SetError fulfils the promise with an error.
func (p *Promise) SetError(err error) error { return p.settle(stateError, nil, err) }

// Cancel fulfils the promise as cancelled.
func (p *Promise) Cancel() error {
	return p.settle(stateCancelled, nil, coreerr.New(coreerr.PromiseCancelledError, "future was cancelled"))
}

// Value returns the stored value, or an error: the stored failure, or
// coreerr.PromiseNotFulfilledError if the future is still unset.
func (f *Future) Value() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case stateUnset:
		return nil, coreerr.New(coreerr.PromiseNotFulfilledError, "future not yet fulfilled")
	case stateValue:
		return f.value, nil
	default:
		return nil, f.err
	}
}

// IsDone reports whether the future has settled (value, error, or
// cancelled).
func (f *Future) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != stateUnset
}

// Wait blocks until the future settles or timeout elapses (a negative
// timeout waits forever), returning whether it settled.
func (f *Future) Wait(timeout time.Duration) bool {
	if f.IsDone() {
		return true
	}
	if timeout < 0 {
		done := make(chan struct{})
		f.WhenValid(func(any, error) { close(done) })
		<-done
		return true
	}

	done := make(chan struct{})
	var once sync.Once
	f.WhenValid(func(any, error) { once.Do(func() { close(done) }) })

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return f.IsDone()
	}
}

// WhenValid registers a continuation. If the future is already settled, cb
// runs immediately on the calling goroutine before WhenValid returns;
// otherwise it runs exactly once, on whichever goroutine fulfils the
// promise.
func (f *Future) WhenValid(cb func(value any, err error)) {
	f.mu.Lock()
	if f.state != stateUnset {
		value, err := f.value, f.err
		f.mu.Unlock()
		cb(value, err)
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// AndThen creates a new promise and a continuation that invokes
// fn(newPromise, f) once f settles; fn is responsible for fulfilling
// newPromise. If fn panics, the new promise is failed with a CallbackError
// instead of crashing the fulfilling goroutine.
func (f *Future) AndThen(fn func(p *Promise, f *Future)) *Future {
	next := NewPromise()
	f.WhenValid(func(any, error) {
		defer func() {
			if r := recover(); r != nil {
				_ = next.SetError(coreerr.Newf(coreerr.CallbackError, "panic in AndThen continuation: %v", r))
			}
		}()
		fn(next, f)
	})
	return next.Future()
}
