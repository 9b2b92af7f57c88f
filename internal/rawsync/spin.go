package rawsync

import (
	"runtime"

	"github.com/codelif/futexsync/internal/futex"
)

const spinLimit = 100

// spinUntil reloads w until done reports true or the spin budget runs out,
// and returns the last value it saw.
func spinUntil[S futex.Scope](w *futex.Futex[S], done func(uint32) bool) uint32 {
	for spin := spinLimit; ; spin-- {
		state := w.Load()
		if done(state) || spin == 0 {
			return state
		}
		runtime.Gosched()
	}
}
