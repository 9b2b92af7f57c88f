package rawsync

import "github.com/codelif/futexsync/internal/futex"

// The kernel keeps the waiter queue for us, so a Once is a single word with
// five states. Threads wait by setting the state to queued and sleeping on
// the word; the running thread wakes all of them when it finishes.
const (
	// No initialization has run yet, and no thread is currently using the
	// Once.
	incomplete = 0
	// An earlier initializer poisoned the Once. No thread is currently
	// using it.
	poisoned = 1
	// Some thread is running the initializer. It may succeed, so everybody
	// else has to wait for it.
	running = 2
	// Like running, and at least one thread is asleep waiting for it.
	queued = 3
	// Initialization has completed; every later call returns immediately.
	complete = 4
)

// Once runs an initializer exactly once, with every other caller blocking
// until it has finished.
//
// The zero value is a Once that has not run. A Once must not be copied after
// first use. Calling into a Once from its own initializer deadlocks.
type Once[S futex.Scope] struct {
	state futex.Futex[S]
}

// OnceState is handed to initializers run through CallOnceForce. It tells
// them whether the Once was poisoned, and lets them decide what state the
// Once is left in.
type OnceState struct {
	poisoned   bool
	setStateTo uint32
}

// IsPoisoned reports whether the Once was poisoned before this initializer
// started.
func (s *OnceState) IsPoisoned() bool {
	return s.poisoned
}

// Poison leaves the Once poisoned when the initializer returns. Later
// CallOnce calls fail with ErrPoisoned; CallOnceForce calls run again.
func (s *OnceState) Poison() {
	s.setStateTo = poisoned
}

// SetIncomplete leaves the Once incomplete when the initializer returns, so
// the next caller runs an initializer again.
func (s *OnceState) SetIncomplete() {
	s.setStateTo = incomplete
}

// IsCompleted reports whether an initializer has completed successfully.
func (o *Once[S]) IsCompleted() bool {
	return o.state.Load() == complete
}

// CallOnce runs f unless an initializer has already completed, blocking
// while another caller's initializer is running.
//
// If f panics the Once is left incomplete and the panic propagates; the next
// caller runs its own initializer. CallOnce fails with ErrPoisoned, without
// running f, if the Once was poisoned.
func (o *Once[S]) CallOnce(f func()) error {
	if o.IsCompleted() {
		return nil
	}
	return o.call(false, func(*OnceState) { f() })
}

// CallOnceForce is like CallOnce, but runs f even if the Once was poisoned.
// f can inspect and change the outcome through its OnceState.
func (o *Once[S]) CallOnceForce(f func(*OnceState)) {
	if o.IsCompleted() {
		return
	}
	// a forced call never reports poisoning
	_ = o.call(true, f)
}

func (o *Once[S]) call(ignorePoisoning bool, f func(*OnceState)) error {
	state := o.state.Load()
	for {
		switch state {
		case poisoned, incomplete:
			if state == poisoned && !ignorePoisoning {
				return ErrPoisoned
			}

			// Try to register the current thread as the one running.
			if !o.state.CompareAndSwap(state, running) {
				state = o.state.Load()
				continue
			}
			o.run(state == poisoned, f)
			return nil

		case running, queued:
			// Set the state to queued if it is not already.
			if state == running && !o.state.CompareAndSwap(running, queued) {
				state = o.state.Load()
				continue
			}

			o.state.Wait(queued)
			state = o.state.Load()

		case complete:
			return nil

		default:
			panic("futexsync: invalid Once state")
		}
	}
}

func (o *Once[S]) run(wasPoisoned bool, f func(*OnceState)) {
	// If f never returns normally, the guard leaves the Once incomplete and
	// still wakes the waiters.
	guard := completionGuard[S]{state: &o.state, setStateTo: incomplete}
	defer guard.release()

	st := OnceState{poisoned: wasPoisoned, setStateTo: complete}
	f(&st)
	guard.setStateTo = st.setStateTo
}

// reset puts the Once back to its zero state. The caller must have exclusive
// access.
func (o *Once[S]) reset() {
	o.state.Store(incomplete)
}

type completionGuard[S futex.Scope] struct {
	state      *futex.Futex[S]
	setStateTo uint32
}

func (g *completionGuard[S]) release() {
	// Only pay for the wake if somebody went to sleep.
	if g.state.Swap(g.setStateTo) == queued {
		g.state.WakeAll()
	}
}
