package rawsync_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelif/futexsync/internal/futex"
	"github.com/codelif/futexsync/internal/rawsync"
)

func testRwLockExclusivity[S futex.Scope](t *testing.T) {
	t.Helper()

	const (
		readers    = 8
		writers    = 4
		iterations = 1000
	)

	var (
		rw       rawsync.RwLock[S]
		nReaders atomic.Int32
		nWriters atomic.Int32
		wg       sync.WaitGroup
	)

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				rw.Lock()
				if nWriters.Add(1) != 1 || nReaders.Load() != 0 {
					t.Error("writer coexists with another holder")
				}
				nWriters.Add(-1)
				rw.Unlock()
			}
		}()
	}

	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				rw.RLock()
				nReaders.Add(1)
				if nWriters.Load() != 0 {
					t.Error("reader coexists with a writer")
				}
				nReaders.Add(-1)
				rw.RUnlock()
			}
		}()
	}

	wg.Wait()
	assert.False(t, rw.IsLocked())
}

func TestRwLockExclusivity(t *testing.T) {
	t.Parallel()

	t.Run("private", func(t *testing.T) {
		t.Parallel()
		testRwLockExclusivity[futex.Private](t)
	})
	t.Run("shared", func(t *testing.T) {
		t.Parallel()
		testRwLockExclusivity[futex.Shared](t)
	})
}

func TestRwLockConcurrentReaders(t *testing.T) {
	t.Parallel()

	const n = 10

	var (
		rw      rawsync.RwLock[futex.Private]
		holding sync.WaitGroup
		release = make(chan struct{})
		done    sync.WaitGroup
	)

	holding.Add(n)
	for range n {
		done.Add(1)
		go func() {
			defer done.Done()
			rw.RLock()
			holding.Done()
			<-release
			rw.RUnlock()
		}()
	}

	// all n readers hold the lock at once
	holding.Wait()
	assert.True(t, rw.IsLocked())
	assert.False(t, rw.IsLockedExclusive())
	assert.False(t, rw.TryLock())

	close(release)
	done.Wait()

	assert.False(t, rw.IsLocked())
	assert.True(t, rw.TryLock())
	rw.Unlock()
}

func TestRwLockTry(t *testing.T) {
	t.Parallel()

	var rw rawsync.RwLock[futex.Private]

	require.True(t, rw.TryLock())
	assert.True(t, rw.IsLockedExclusive())
	assert.False(t, rw.TryRLock())
	assert.False(t, rw.TryLock())
	rw.Unlock()

	require.True(t, rw.TryRLock())
	assert.True(t, rw.TryRLock())
	assert.False(t, rw.TryLock())
	rw.RUnlock()
	rw.RUnlock()
	assert.False(t, rw.IsLocked())
}

func TestRwLockWriterBlocksReaders(t *testing.T) {
	t.Parallel()

	var rw rawsync.RwLock[futex.Private]
	rw.Lock()

	acquired := make(chan struct{})
	go func() {
		rw.RLock()
		close(acquired)
		rw.RUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader got in while the lock was write locked")
	case <-time.After(50 * time.Millisecond):
	}

	rw.Unlock()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("reader was never woken")
	}
}

func TestRwLockWaitingWriterHoldsOffReaders(t *testing.T) {
	t.Parallel()

	var rw rawsync.RwLock[futex.Private]
	rw.RLock()

	writerIn := make(chan struct{})
	go func() {
		rw.Lock()
		close(writerIn)
		rw.Unlock()
	}()

	// wait for the writer to announce itself
	require.Eventually(t, func() bool {
		if rw.TryRLock() {
			rw.RUnlock()
			return false
		}
		return true
	}, 5*time.Second, time.Millisecond)

	rw.RUnlock()

	select {
	case <-writerIn:
	case <-time.After(5 * time.Second):
		t.Fatal("writer was starved")
	}
}

func TestRwLockDowngrade(t *testing.T) {
	t.Parallel()

	var rw rawsync.RwLock[futex.Private]
	rw.Lock()

	readerIn := make(chan struct{})
	go func() {
		rw.RLock()
		close(readerIn)
		rw.RUnlock()
	}()

	select {
	case <-readerIn:
		t.Fatal("reader got in while the lock was write locked")
	case <-time.After(20 * time.Millisecond):
	}

	rw.Downgrade()
	assert.True(t, rw.IsLocked())
	assert.False(t, rw.IsLockedExclusive())
	assert.False(t, rw.TryLock())

	select {
	case <-readerIn:
	case <-time.After(5 * time.Second):
		t.Fatal("downgrade did not let the waiting reader in")
	}

	rw.RUnlock()
	assert.False(t, rw.IsLocked())
}

func TestRwLockMisuse(t *testing.T) {
	t.Parallel()

	tcs := map[string]func(rw *rawsync.RwLock[futex.Private]){
		"runlock unlocked": func(rw *rawsync.RwLock[futex.Private]) { rw.RUnlock() },
		"unlock unlocked":  func(rw *rawsync.RwLock[futex.Private]) { rw.Unlock() },
		"unlock read locked": func(rw *rawsync.RwLock[futex.Private]) {
			rw.RLock()
			rw.Unlock()
		},
		"downgrade read locked": func(rw *rawsync.RwLock[futex.Private]) {
			rw.RLock()
			rw.Downgrade()
		},
	}

	for name, misuse := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var rw rawsync.RwLock[futex.Private]
			assert.Panics(t, func() { misuse(&rw) })
		})
	}
}

func TestRwLockMisuseLeavesStateIntact(t *testing.T) {
	t.Parallel()

	t.Run("runlock unlocked", func(t *testing.T) {
		t.Parallel()

		var rw rawsync.RwLock[futex.Private]
		assert.Panics(t, rw.RUnlock)
		assert.Equal(t, "RwLock(unlocked, writer notify 0)", rw.String())

		require.True(t, rw.TryLock())
		rw.Unlock()
		require.True(t, rw.TryRLock())
		rw.RUnlock()
	})

	t.Run("unlock read locked", func(t *testing.T) {
		t.Parallel()

		var rw rawsync.RwLock[futex.Private]
		rw.RLock()
		assert.Panics(t, rw.Unlock)
		assert.Equal(t, "RwLock(1 readers, writer notify 0)", rw.String())

		rw.RUnlock()
		assert.False(t, rw.IsLocked())
		require.True(t, rw.TryLock())
		rw.Unlock()
	})

	t.Run("runlock write locked", func(t *testing.T) {
		t.Parallel()

		var rw rawsync.RwLock[futex.Private]
		rw.Lock()
		assert.Panics(t, rw.RUnlock)
		assert.True(t, rw.IsLockedExclusive())

		rw.Unlock()
		assert.False(t, rw.IsLocked())
	})
}

func TestRwLockRLocker(t *testing.T) {
	t.Parallel()

	var rw rawsync.RwLock[futex.Private]
	l := rw.RLocker()

	l.Lock()
	assert.True(t, rw.IsLocked())
	assert.True(t, rw.TryRLock())
	rw.RUnlock()
	l.Unlock()
	assert.False(t, rw.IsLocked())
}
