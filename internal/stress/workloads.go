package stress

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/codelif/futexsync/internal/futex"
)

func runMutex[S futex.Scope](ctx context.Context, a *arena[S], _ int, cfg Config) error {
	for range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.mu.Lock()
		n := atomic.AddInt32(&a.holders, 1)
		atomic.AddInt32(&a.holders, -1)
		a.mu.Unlock()

		if n != 1 {
			return fmt.Errorf("%w: %d holders inside the mutex", ErrViolation, n)
		}
	}
	return nil
}

func runRwLock[S futex.Scope](ctx context.Context, a *arena[S], worker int, cfg Config) error {
	writer := worker%4 == 0

	for range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		if writer {
			a.rw.Lock()
			w := atomic.AddInt32(&a.writers, 1)
			r := atomic.LoadInt32(&a.readers)
			atomic.AddInt32(&a.writers, -1)
			a.rw.Unlock()

			if w != 1 || r != 0 {
				return fmt.Errorf("%w: writer saw %d writers and %d readers", ErrViolation, w, r)
			}
			continue
		}

		a.rw.RLock()
		atomic.AddInt32(&a.readers, 1)
		w := atomic.LoadInt32(&a.writers)
		atomic.AddInt32(&a.readers, -1)
		a.rw.RUnlock()

		if w != 0 {
			return fmt.Errorf("%w: reader saw %d writers", ErrViolation, w)
		}
	}
	return nil
}

// runCondvar passes a turn around the workers in order. Every handoff
// depends on exactly one notification, so a lost wakeup shows up as a stall.
func runCondvar[S futex.Scope](ctx context.Context, a *arena[S], worker int, cfg Config) error {
	workers := uint32(cfg.Workers)

	// Parked waiters only re-check ctx when woken. Taking the mutex first
	// orders the wakeup after any waiter's generation snapshot.
	stop := context.AfterFunc(ctx, func() {
		a.mu.Lock()
		a.mu.Unlock()
		a.cond.NotifyAll()
	})
	defer stop()

	for i := range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := uint32(i)*workers + uint32(worker)

		a.mu.Lock()
		res := a.cond.WaitTimeoutWhile(&a.mu, stallTimeout, func() bool {
			return a.turn != want && ctx.Err() == nil
		})
		if res.TimedOut() {
			a.mu.Unlock()
			return fmt.Errorf("%w: worker %d stalled waiting for turn %d", ErrViolation, worker, want)
		}
		if a.turn != want {
			a.mu.Unlock()
			return ctx.Err()
		}
		a.turn++
		a.mu.Unlock()

		a.cond.NotifyAll()
	}
	return nil
}

func runOnce[S futex.Scope](ctx context.Context, a *arena[S], worker int, cfg Config) error {
	for i := range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		// stagger the starting point so workers race on different onces
		k := (i + worker) % cfg.Iterations
		err := a.onces[k].CallOnce(func() {
			atomic.AddInt32(&a.calls[k], 1)
		})
		if err != nil {
			return err
		}
		if !a.onces[k].IsCompleted() {
			return fmt.Errorf("%w: once %d not complete after CallOnce", ErrViolation, k)
		}
	}
	return nil
}

func checkOnce[S futex.Scope](a *arena[S], _ Config) error {
	for k := range a.calls {
		if n := atomic.LoadInt32(&a.calls[k]); n != 1 {
			return fmt.Errorf("%w: once %d ran %d initializers", ErrViolation, k, n)
		}
	}
	return nil
}
