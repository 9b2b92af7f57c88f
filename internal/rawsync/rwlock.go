package rawsync

import (
	"sync"

	"github.com/codelif/futexsync/internal/futex"
)

// The state word packs the reader count with two waiting flags:
//
//	bits 0..29: 0 unlocked, 1..0x3fff_fffe readers, 0x3fff_ffff write locked
//	bit 30:     readers waiting
//	bit 31:     writers waiting
const (
	readLocked     = 1
	rwMask         = (1 << 30) - 1
	writeLocked    = rwMask
	maxReaders     = rwMask - 1
	readersWaiting = 1 << 30
	writersWaiting = 1 << 31

	// adding this turns a write lock into a single read lock
	downgradeDelta = ^uint32(writeLocked - readLocked - 1)
)

func isUnlocked(state uint32) bool {
	return state&rwMask == 0
}

func isWriteLocked(state uint32) bool {
	return state&rwMask == writeLocked
}

func hasReadersWaiting(state uint32) bool {
	return state&readersWaiting != 0
}

func hasWritersWaiting(state uint32) bool {
	return state&writersWaiting != 0
}

// Readers are held back while anything is waiting. That keeps a steady
// stream of readers from starving writers.
func isReadLockable(state uint32) bool {
	return state&rwMask < maxReaders && !hasReadersWaiting(state) && !hasWritersWaiting(state)
}

func hasReachedMaxReaders(state uint32) bool {
	return state&rwMask == maxReaders
}

// RwLock is a reader/writer lock held in two 32-bit words.
//
// The zero value is an unlocked lock. An RwLock must not be copied after
// first use. Waiting writers take precedence over new readers.
type RwLock[S futex.Scope] struct {
	state futex.Futex[S]
	// writerNotify is incremented every time a writer is woken, so a writer
	// that is about to sleep can tell whether it missed a wakeup.
	writerNotify futex.Futex[S]
}

// TryRLock tries to take a shared lock without sleeping.
func (rw *RwLock[S]) TryRLock() bool {
	for {
		state := rw.state.Load()
		if !isReadLockable(state) {
			return false
		}
		if rw.state.CompareAndSwap(state, state+readLocked) {
			return true
		}
	}
}

// RLock takes a shared lock, sleeping while rw is write locked or a writer
// is waiting.
func (rw *RwLock[S]) RLock() {
	state := rw.state.Load()
	if !isReadLockable(state) || !rw.state.CompareAndSwap(state, state+readLocked) {
		rw.readContended()
	}
}

// RUnlock releases a shared lock.
//
// RUnlock panics if rw is not read locked, and leaves rw as it was.
func (rw *RwLock[S]) RUnlock() {
	var state uint32
	for {
		prev := rw.state.Load()
		if isUnlocked(prev) || isWriteLocked(prev) {
			panic("futexsync: RUnlock of RwLock that is not read locked")
		}
		state = prev - readLocked
		if rw.state.CompareAndSwap(prev, state) {
			break
		}
	}

	// A reader can only be waiting on a read locked lock if a writer is
	// waiting too, so there is nothing to do unless we were the last reader
	// and a writer is queued.
	if isUnlocked(state) && hasWritersWaiting(state) {
		rw.wakeWriterOrReaders(state)
	}
}

func (rw *RwLock[S]) readContended() {
	state := rw.spinRead()

	for {
		// If we can lock it, lock it.
		if isReadLockable(state) {
			if rw.state.CompareAndSwap(state, state+readLocked) {
				return
			}
			state = rw.state.Load()
			continue
		}

		if hasReachedMaxReaders(state) {
			panic("futexsync: too many active read locks on RwLock")
		}

		// Make sure the readers waiting bit is set before we go to sleep.
		if !hasReadersWaiting(state) {
			if !rw.state.CompareAndSwap(state, state|readersWaiting) {
				state = rw.state.Load()
				continue
			}
		}

		// Wait for the state to change.
		rw.state.Wait(state | readersWaiting)

		state = rw.spinRead()
	}
}

// TryLock tries to take the exclusive lock without sleeping.
func (rw *RwLock[S]) TryLock() bool {
	for {
		state := rw.state.Load()
		if !isUnlocked(state) {
			return false
		}
		if rw.state.CompareAndSwap(state, state+writeLocked) {
			return true
		}
	}
}

// Lock takes the exclusive lock, sleeping while any reader or writer holds
// rw.
func (rw *RwLock[S]) Lock() {
	if !rw.state.CompareAndSwap(0, writeLocked) {
		rw.writeContended()
	}
}

// Unlock releases the exclusive lock.
//
// Unlock panics if rw is not write locked, and leaves rw as it was.
func (rw *RwLock[S]) Unlock() {
	var state uint32
	for {
		prev := rw.state.Load()
		if !isWriteLocked(prev) {
			panic("futexsync: Unlock of RwLock that is not write locked")
		}
		state = prev - writeLocked
		if rw.state.CompareAndSwap(prev, state) {
			break
		}
	}

	if hasWritersWaiting(state) || hasReadersWaiting(state) {
		rw.wakeWriterOrReaders(state)
	}
}

// Downgrade atomically turns the caller's exclusive lock into a shared lock.
// No other writer can take the lock in between.
func (rw *RwLock[S]) Downgrade() {
	for {
		state := rw.state.Load()
		if !isWriteLocked(state) {
			panic("futexsync: Downgrade of RwLock that is not write locked")
		}

		next := state + downgradeDelta
		// Waiting readers can join us, unless a writer is queued ahead of
		// them; then they keep waiting and the last reader hands over to it.
		wakeReaders := hasReadersWaiting(state) && !hasWritersWaiting(state)
		if wakeReaders {
			next &^= readersWaiting
		}

		if rw.state.CompareAndSwap(state, next) {
			if wakeReaders {
				rw.state.WakeAll()
			}
			return
		}
	}
}

func (rw *RwLock[S]) writeContended() {
	state := rw.spinWrite()

	otherWritersWaiting := uint32(0)

	for {
		// If it's unlocked, we try to lock it.
		if isUnlocked(state) {
			if rw.state.CompareAndSwap(state, state|writeLocked|otherWritersWaiting) {
				return
			}
			state = rw.state.Load()
			continue
		}

		// Set the waiting bit indicating that we're waiting on it.
		if !hasWritersWaiting(state) {
			if !rw.state.CompareAndSwap(state, state|writersWaiting) {
				state = rw.state.Load()
				continue
			}
		}

		// Other writers might be waiting now too, so we should make sure
		// we keep that bit on once we manage to lock it.
		otherWritersWaiting = writersWaiting

		// Examine the notification counter before we check if the lock is
		// still held, so a wakeup between the check and the sleep is seen.
		seq := rw.writerNotify.Load()

		// Don't go to sleep if the lock has become available, or if the
		// writers waiting bit is no longer set.
		state = rw.state.Load()
		if isUnlocked(state) || !hasWritersWaiting(state) {
			continue
		}

		rw.writerNotify.Wait(seq)

		state = rw.spinWrite()
	}
}

// wakeWriterOrReaders wakes up waiting threads after the lock was released.
//
// If both readers and writers are waiting, one writer is woken. A writer
// locks regardless of the waiting bits, so if the lock gets taken in the
// meantime, whoever took it wakes the waiters on its own unlock.
func (rw *RwLock[S]) wakeWriterOrReaders(state uint32) {
	if !isUnlocked(state) {
		panic("futexsync: waking RwLock waiters while it is locked")
	}

	// Only writers waiting: wake one of them.
	if state == writersWaiting {
		if rw.state.CompareAndSwap(state, 0) {
			rw.wakeWriter()
			return
		}
		state = rw.state.Load()
	}

	// Both waiting: leave the readers waiting and wake one writer.
	if state == readersWaiting+writersWaiting {
		if !rw.state.CompareAndSwap(state, readersWaiting) {
			// The lock got locked. Not our problem anymore.
			return
		}
		if rw.wakeWriter() {
			return
		}
		// No writer was actually asleep, so we can't be sure a writer got
		// notified. Wake the readers instead.
		state = readersWaiting
	}

	// Only readers waiting: wake them all.
	if state == readersWaiting {
		if rw.state.CompareAndSwap(state, 0) {
			rw.state.WakeAll()
		}
	}
}

// wakeWriter reports whether a sleeping writer was woken. It can return
// false even when writers are waiting but have not gone to sleep yet; those
// observe the new writerNotify value before sleeping.
func (rw *RwLock[S]) wakeWriter() bool {
	rw.writerNotify.Add(1)
	return rw.writerNotify.Wake()
}

func (rw *RwLock[S]) spinWrite() uint32 {
	// Stop spinning when it's unlocked or when there's waiting writers,
	// to keep things somewhat fair.
	return spinUntil(&rw.state, func(state uint32) bool {
		return isUnlocked(state) || hasWritersWaiting(state)
	})
}

func (rw *RwLock[S]) spinRead() uint32 {
	// Stop spinning when it's unlocked or read locked, or when there's
	// waiting threads.
	return spinUntil(&rw.state, func(state uint32) bool {
		return !isWriteLocked(state) || hasReadersWaiting(state) || hasWritersWaiting(state)
	})
}

// IsLocked reports whether rw is held in any mode.
func (rw *RwLock[S]) IsLocked() bool {
	return !isUnlocked(rw.state.Load())
}

// IsLockedExclusive reports whether rw is write locked.
func (rw *RwLock[S]) IsLockedExclusive() bool {
	return isWriteLocked(rw.state.Load())
}

// RLocker returns a [sync.Locker] that takes and releases shared locks on rw.
func (rw *RwLock[S]) RLocker() sync.Locker {
	return (*rlocker[S])(rw)
}

type rlocker[S futex.Scope] RwLock[S]

func (r *rlocker[S]) Lock()   { (*RwLock[S])(r).RLock() }
func (r *rlocker[S]) Unlock() { (*RwLock[S])(r).RUnlock() }
