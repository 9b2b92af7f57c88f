package rawsync

import (
	"time"

	"github.com/codelif/futexsync/internal/futex"
	"golang.org/x/sys/unix"
)

// WaitTimeoutResult reports whether a timed wait gave up.
type WaitTimeoutResult bool

// TimedOut reports whether the wait is known to have timed out.
func (r WaitTimeoutResult) TimedOut() bool {
	return bool(r)
}

// Condvar is a condition variable held in a single 32-bit word.
//
// The zero value is ready to use. A Condvar must not be copied after first
// use, and every waiter must use the same mutex.
type Condvar[S futex.Scope] struct {
	// The value of this word is simply incremented on every notification.
	// Wait uses it to not miss any notification sent after it unlocks the
	// mutex and before it goes to sleep.
	futex futex.Futex[S]
}

// NotifyOne wakes up one goroutine blocked on c, if there is any.
func (c *Condvar[S]) NotifyOne() {
	c.futex.Add(1)
	c.futex.Wake()
}

// NotifyAll wakes up every goroutine blocked on c.
func (c *Condvar[S]) NotifyAll() {
	c.futex.Add(1)
	c.futex.WakeAll()
}

// Wait atomically unlocks m and sleeps until notified, then locks m again
// before returning. Wakeups can be spurious, so the caller has to re-check
// its condition in a loop; see WaitWhile.
func (c *Condvar[S]) Wait(m *Mutex[S]) {
	c.wait(m, nil)
}

// WaitWhile waits on c for as long as condition returns true. condition is
// always called with m locked.
func (c *Condvar[S]) WaitWhile(m *Mutex[S], condition func() bool) {
	for condition() {
		c.Wait(m)
	}
}

// WaitTimeout is like Wait, but gives up after roughly d. m is locked again
// on return either way.
func (c *Condvar[S]) WaitTimeout(m *Mutex[S], d time.Duration) WaitTimeoutResult {
	return WaitTimeoutResult(!c.wait(m, futex.Deadline(d)))
}

// WaitTimeoutWhile waits on c for as long as condition returns true, but at
// most d in total no matter how many times it wakes up. The result reports a
// timeout only if condition still held when the time ran out.
func (c *Condvar[S]) WaitTimeoutWhile(m *Mutex[S], d time.Duration, condition func() bool) WaitTimeoutResult {
	start := time.Now()
	for {
		if !condition() {
			return false
		}
		remaining := d - time.Since(start)
		if remaining <= 0 {
			return true
		}
		c.WaitTimeout(m, remaining)
	}
}

func (c *Condvar[S]) wait(m *Mutex[S], deadline *unix.Timespec) bool {
	// Examine the notification counter _before_ we unlock the mutex.
	seq := c.futex.Load()

	m.Unlock()

	// Wait, but only if there hasn't been any notification since we
	// unlocked the mutex.
	woken := c.futex.WaitUntil(seq, deadline)

	m.Lock()

	return woken
}
