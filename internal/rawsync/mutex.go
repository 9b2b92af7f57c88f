package rawsync

import "github.com/codelif/futexsync/internal/futex"

const (
	unlocked  = 0
	locked    = 1 // locked, no other threads waiting
	contended = 2 // locked, and other threads waiting (contended)
)

// Mutex is a mutual exclusion lock held in a single 32-bit word.
//
// The zero value is an unlocked mutex. A Mutex must not be copied after
// first use. Waiters are not served in any particular order.
type Mutex[S futex.Scope] struct {
	futex futex.Futex[S]
}

// Lock locks m, sleeping until the lock is available.
func (m *Mutex[S]) Lock() {
	// Fast path: try to take an uncontended lock.
	if m.futex.CompareAndSwap(unlocked, locked) {
		return
	}
	m.lockContended()
}

func (m *Mutex[S]) lockContended() {
	// Spin first to speed things up if the lock is released quickly.
	state := m.spin()

	// If it's unlocked now, attempt to take the lock without marking it
	// as contended.
	if state == unlocked {
		if m.futex.CompareAndSwap(unlocked, locked) {
			return
		}
		state = m.futex.Load()
	}

	for {
		// Put the lock in contended state. We avoid an unnecessary write if
		// it is already set to contended, to not dirty the cache line.
		//
		// We can't go back to locked here, since we don't know whether other
		// threads are still sleeping on the word.
		if state != contended && m.futex.Swap(contended) == unlocked {
			// We changed it from unlocked to contended, so we just
			// successfully locked it.
			return
		}

		// Wait until we get resumed in Unlock.
		m.futex.Wait(contended)

		state = m.spin()
	}
}

func (m *Mutex[S]) spin() uint32 {
	// We only spin while the lock is held without waiters. Once somebody
	// sleeps on it there is little point in spinning.
	return spinUntil(&m.futex, func(state uint32) bool {
		return state != locked
	})
}

// TryLock tries to lock m without sleeping and reports whether it succeeded.
func (m *Mutex[S]) TryLock() bool {
	return m.futex.CompareAndSwap(unlocked, locked)
}

// Unlock unlocks m. Unlocking an unlocked mutex panics.
//
// A locked Mutex is not associated with a particular goroutine or process;
// any of them may unlock it.
func (m *Mutex[S]) Unlock() {
	switch m.futex.Swap(unlocked) {
	case unlocked:
		panic("futexsync: unlock of unlocked Mutex")
	case contended:
		// Some threads are sleeping; wake one so it can take the lock.
		m.futex.Wake()
	}
}

// IsLocked reports whether m is locked at the moment of the call.
func (m *Mutex[S]) IsLocked() bool {
	return m.futex.Load() != unlocked
}
