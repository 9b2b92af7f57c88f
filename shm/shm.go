// Package shm provides the futexsync primitives for memory shared between
// processes, and memfd-backed regions to put them in.
//
// The types here wait on the kernel's shared futex queue, which is keyed by
// the physical page rather than the virtual address, so two processes (or
// two mappings in one process) reach the same waiters through the same
// word. Every process sharing a primitive must use the shm type for it;
// mixing private and shared waits on one word loses wakeups.
//
// A primitive is placed in a region with At. Zero-filled memory is an
// unlocked Mutex, an unlocked RwLock, a fresh Condvar and an incomplete Once.
package shm

import (
	"github.com/codelif/futexsync/internal/futex"
	"github.com/codelif/futexsync/internal/rawsync"
)

type (
	Mutex   = rawsync.Mutex[futex.Shared]
	RwLock  = rawsync.RwLock[futex.Shared]
	Condvar = rawsync.Condvar[futex.Shared]
	Once    = rawsync.Once[futex.Shared]

	// OnceLock in shared memory is only meaningful for T without Go
	// pointers.
	OnceLock[T any] = rawsync.OnceLock[futex.Shared, T]
)
