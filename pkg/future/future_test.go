package future

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekernel/core/pkg/coreerr"
)

func TestPromiseExactlyOnceSettle(t *testing.T) {
	p := NewPromise()
	require.NoError(t, p.SetValue(42))

	err := p.SetValue(43)
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.PromiseDoubleWriteError))

	err = p.SetError(assert.AnError)
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.PromiseDoubleWriteError))

	assert.True(t, p.Future().Wait(time.Second))
}

func TestFutureValueBeforeFulfilment(t *testing.T) {
	p := NewPromise()
	_, err := p.Future().Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.PromiseNotFulfilledError))
}

func TestWhenValidRunsExactlyOnce(t *testing.T) {
	p := NewPromise()
	var calls int32
	p.Future().WhenValid(func(any, error) { atomic.AddInt32(&calls, 1) })
	p.Future().WhenValid(func(any, error) { atomic.AddInt32(&calls, 1) })

	require.NoError(t, p.SetValue("done"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// registering after settle still runs exactly once, immediately
	p.Future().WhenValid(func(any, error) { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPromiseFulfilmentFromOtherGoroutineRunsContinuation(t *testing.T) {
	p := NewPromise()
	var wg sync.WaitGroup
	wg.Add(1)
	var got any
	p.Future().WhenValid(func(v any, err error) {
		got = v
		wg.Done()
	})

	go func() {
		_ = p.SetValue("from-other-goroutine")
	}()

	wg.Wait()
	assert.Equal(t, "from-other-goroutine", got)
}

func TestAndThenPropagatesPanicAsCallbackError(t *testing.T) {
	p := NewPromise()
	next := p.Future().AndThen(func(np *Promise, f *Future) {
		panic("boom")
	})

	require.NoError(t, p.SetValue(1))
	_, err := next.Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.CallbackError))
}

func TestWaitTimeout(t *testing.T) {
	p := NewPromise()
	assert.False(t, p.Future().Wait(10*time.Millisecond))

	require.NoError(t, p.SetValue(1))
	assert.True(t, p.Future().Wait(time.Second))
}

func TestCancel(t *testing.T) {
	p := NewPromise()
	require.NoError(t, p.Cancel())
	_, err := p.Future().Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.PromiseCancelledError))
}
