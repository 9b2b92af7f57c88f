// Package futexsync provides blocking synchronization primitives built
// directly on Linux futexes: Mutex, RwLock, Condvar, Once and OnceLock.
//
// Each primitive is one or two 32-bit words whose zero value is ready to
// use, so a zero-filled, 4-byte aligned block of memory is a valid instance
// with no constructor call. The types in this package wait on the
// process-private kernel queue. For primitives living in memory shared
// between processes, use package shm instead.
//
// A primitive must not be copied or moved while in use; keep it in a
// struct field, a package variable or on the heap.
package futexsync

import (
	"github.com/codelif/futexsync/internal/futex"
	"github.com/codelif/futexsync/internal/rawsync"
)

type (
	// Mutex is a mutual exclusion lock. It satisfies sync.Locker.
	Mutex = rawsync.Mutex[futex.Private]

	// RwLock is a writer-preferring reader/writer lock.
	RwLock = rawsync.RwLock[futex.Private]

	// Condvar is a condition variable used together with a Mutex.
	Condvar = rawsync.Condvar[futex.Private]

	// Once runs an initializer exactly once.
	Once = rawsync.Once[futex.Private]

	// OnceLock is a cell written at most once.
	OnceLock[T any] = rawsync.OnceLock[futex.Private, T]

	OnceState         = rawsync.OnceState
	WaitTimeoutResult = rawsync.WaitTimeoutResult
)

var (
	ErrPoisoned    = rawsync.ErrPoisoned
	ErrInitialized = rawsync.ErrInitialized
)

// NewOnceLock returns a OnceLock that already holds value.
func NewOnceLock[T any](value T) *OnceLock[T] {
	return rawsync.NewOnceLock[futex.Private](value)
}
