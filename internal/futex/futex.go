// package futex implements wrappers for the futex system call.
// Waits use FUTEX_WAIT_BITSET with a full mask so that timeouts are
// absolute CLOCK_MONOTONIC deadlines; wakes use plain FUTEX_WAKE.
//
// Whether the kernel keys a word by address space (private) or by the
// underlying page (shared) is selected by the Scope type parameter, so it
// is fixed for every instance at compile time.
package futex

import (
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	FUTEX_WAKE         = 1
	FUTEX_WAIT_BITSET  = 9
	FUTEX_PRIVATE_FLAG = 128

	// matches every waiter, which makes FUTEX_WAIT_BITSET behave like FUTEX_WAIT
	bitsetMatchAny = 0xffff_ffff

	maxWaiters = math.MaxInt32
)

// Scope selects the kernel wait queue consulted by a futex word.
type Scope interface {
	flag() uintptr
}

// Private words are only ever waited on from one process. The kernel can
// skip the shared-mapping lookup for them.
type Private struct{}

func (Private) flag() uintptr { return FUTEX_PRIVATE_FLAG }

// Shared words may live in a MAP_SHARED mapping and be waited on and woken
// from different processes.
type Shared struct{}

func (Shared) flag() uintptr { return 0 }

// Futex is a 32-bit word that threads can sleep on until its value changes.
// The zero-length scope field takes no space, so a Futex has exactly the
// size and alignment of a uint32.
//
// A Futex must not be copied after first use.
type Futex[S Scope] struct {
	_ [0]S
	atomic.Uint32
}

// At returns the futex backed by the word at p. p must stay valid (and must
// not move) for as long as the returned futex is used.
func At[S Scope](p *uint32) *Futex[S] {
	return (*Futex[S])(unsafe.Pointer(p))
}

func (f *Futex[S]) addr() uintptr {
	return uintptr(unsafe.Pointer(&f.Uint32))
}

// Wait sleeps until woken, as long as the word still holds expected when the
// kernel checks it. Callers must re-check their condition on return.
func (f *Futex[S]) Wait(expected uint32) {
	f.WaitUntil(expected, nil)
}

// WaitUntil is like Wait, but gives up at deadline, an absolute time on the
// monotonic clock. A nil deadline never expires.
//
// Returns false on timeout, and true in all other cases.
func (f *Futex[S]) WaitUntil(expected uint32, deadline *unix.Timespec) bool {
	var s S
	for {
		// no need to wait if the value already changed
		if f.Load() != expected {
			return true
		}

		_, _, e := unix.Syscall6(unix.SYS_FUTEX,
			f.addr(),
			uintptr(FUTEX_WAIT_BITSET)|s.flag(),
			uintptr(expected),
			uintptr(unsafe.Pointer(deadline)),
			0,
			bitsetMatchAny)
		switch e {
		case unix.ETIMEDOUT:
			return false
		case unix.EINTR:
			continue
		default:
			return true
		}
	}
}

// Wake wakes at most one waiter. It reports whether a waiter was actually
// woken.
func (f *Futex[S]) Wake() bool {
	return f.wake(1) > 0
}

// WakeAll wakes every waiter.
func (f *Futex[S]) WakeAll() {
	f.wake(maxWaiters)
}

func (f *Futex[S]) wake(n uintptr) uintptr {
	var s S
	woken, _, e := unix.Syscall6(unix.SYS_FUTEX,
		f.addr(),
		uintptr(FUTEX_WAKE)|s.flag(),
		n,
		0, 0, 0)
	if e != 0 {
		return 0
	}
	return woken
}

// Now reads the monotonic clock.
func Now() unix.Timespec {
	var ts unix.Timespec
	// CLOCK_MONOTONIC cannot fail with a valid pointer
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts
}

// Deadline returns the monotonic time d from now. Deadlines that would
// overflow are rounded up to no deadline at all (nil).
func Deadline(d time.Duration) *unix.Timespec {
	if d < 0 {
		d = 0
	}
	ts := Now()
	now := ts.Nano()
	if int64(d) > math.MaxInt64-now {
		return nil
	}
	ts = unix.NsecToTimespec(now + int64(d))
	return &ts
}
