package rawsync_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelif/futexsync/internal/futex"
	"github.com/codelif/futexsync/internal/rawsync"
)

func TestOnceIdempotent(t *testing.T) {
	t.Parallel()

	const n = 16

	var (
		o       rawsync.Once[futex.Private]
		winner  atomic.Int32
		calls   atomic.Int32
		wg      sync.WaitGroup
		start   = make(chan struct{})
		release = make(chan struct{})
	)

	assert.False(t, o.IsCompleted())

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := o.CallOnce(func() {
				calls.Add(1)
				winner.Store(int32(i + 1))
				<-release
			})
			assert.NoError(t, err)
			// every racer observes completion once CallOnce returns
			assert.True(t, o.IsCompleted())
		}()
	}

	close(start)

	require.Eventually(t, func() bool { return winner.Load() != 0 }, 5*time.Second, time.Millisecond)
	// still running
	assert.False(t, o.IsCompleted())
	close(release)

	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, o.IsCompleted())

	// later calls don't run at all
	require.NoError(t, o.CallOnce(func() { calls.Add(1) }))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOnceFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	var (
		o     rawsync.Once[futex.Private]
		calls int
	)

	o.CallOnceForce(func(st *rawsync.OnceState) {
		calls++
		st.SetIncomplete()
	})
	assert.False(t, o.IsCompleted())

	require.NoError(t, o.CallOnce(func() { calls++ }))
	assert.True(t, o.IsCompleted())
	assert.Equal(t, 2, calls)
}

func TestOnceFailureReleasesWaiters(t *testing.T) {
	t.Parallel()

	const n = 8

	var (
		o        rawsync.Once[futex.Shared]
		entered  = make(chan struct{})
		release  = make(chan struct{})
		attempts atomic.Int32
		wg       sync.WaitGroup
	)

	go o.CallOnceForce(func(st *rawsync.OnceState) {
		attempts.Add(1)
		close(entered)
		<-release
		st.SetIncomplete()
	})
	<-entered

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.CallOnce(func() { attempts.Add(1) }))
		}()
	}

	// let the waiters queue up behind the failing initializer
	time.Sleep(20 * time.Millisecond)
	close(release)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiters were left parked after a failed initializer")
	}

	assert.True(t, o.IsCompleted())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestOncePanicLeavesIncomplete(t *testing.T) {
	t.Parallel()

	var o rawsync.Once[futex.Private]
	boom := errors.New("boom")

	assert.PanicsWithError(t, boom.Error(), func() {
		_ = o.CallOnce(func() { panic(boom) })
	})
	assert.False(t, o.IsCompleted())

	ran := false
	require.NoError(t, o.CallOnce(func() { ran = true }))
	assert.True(t, ran)
	assert.True(t, o.IsCompleted())
}

func TestOncePoisoning(t *testing.T) {
	t.Parallel()

	var o rawsync.Once[futex.Private]

	o.CallOnceForce(func(st *rawsync.OnceState) {
		assert.False(t, st.IsPoisoned())
		st.Poison()
	})
	assert.False(t, o.IsCompleted())

	ran := false
	err := o.CallOnce(func() { ran = true })
	require.ErrorIs(t, err, rawsync.ErrPoisoned)
	assert.False(t, ran)

	o.CallOnceForce(func(st *rawsync.OnceState) {
		assert.True(t, st.IsPoisoned())
	})
	assert.True(t, o.IsCompleted())
	assert.NoError(t, o.CallOnce(func() { ran = true }))
	assert.False(t, ran)
}
