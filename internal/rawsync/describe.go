package rawsync

import (
	"fmt"
	"strings"
)

// The String methods only take a snapshot of the words; the state may
// already have changed when the caller looks at it.

func (m *Mutex[S]) String() string {
	switch state := m.futex.Load(); state {
	case unlocked:
		return "Mutex(unlocked)"
	case locked:
		return "Mutex(locked)"
	case contended:
		return "Mutex(contended)"
	default:
		return fmt.Sprintf("Mutex(invalid %#x)", state)
	}
}

func (rw *RwLock[S]) String() string {
	state := rw.state.Load()

	var parts []string
	switch {
	case isUnlocked(state):
		parts = append(parts, "unlocked")
	case isWriteLocked(state):
		parts = append(parts, "write locked")
	default:
		parts = append(parts, fmt.Sprintf("%d readers", state&rwMask))
	}
	if hasReadersWaiting(state) {
		parts = append(parts, "readers waiting")
	}
	if hasWritersWaiting(state) {
		parts = append(parts, "writers waiting")
	}
	return fmt.Sprintf("RwLock(%s, writer notify %d)", strings.Join(parts, ", "), rw.writerNotify.Load())
}

func (c *Condvar[S]) String() string {
	return fmt.Sprintf("Condvar(generation %d)", c.futex.Load())
}

func (o *Once[S]) String() string {
	switch state := o.state.Load(); state {
	case incomplete:
		return "Once(incomplete)"
	case poisoned:
		return "Once(poisoned)"
	case running:
		return "Once(running)"
	case queued:
		return "Once(queued)"
	case complete:
		return "Once(complete)"
	default:
		return fmt.Sprintf("Once(invalid %#x)", state)
	}
}
