package rawsync

import (
	"fmt"

	"github.com/codelif/futexsync/internal/futex"
)

// OnceLock is a cell that is written at most once, then read by anyone.
//
// The zero value is an empty cell. A OnceLock must not be copied after first
// use. Placed in shared memory, T must not contain Go pointers.
type OnceLock[S futex.Scope, T any] struct {
	once Once[S]
	// value is only valid once once has completed.
	value T
}

// NewOnceLock returns a cell that already holds value.
func NewOnceLock[S futex.Scope, T any](value T) *OnceLock[S, T] {
	c := &OnceLock[S, T]{}
	if err := c.Set(value); err != nil {
		panic(err)
	}
	return c
}

// Get returns the value and true, or the zero value and false while the cell
// is empty or being initialized.
func (c *OnceLock[S, T]) Get() (T, bool) {
	if !c.once.IsCompleted() {
		var zero T
		return zero, false
	}
	return c.value, true
}

// GetMut returns a pointer to the value, or nil if the cell is empty. The
// caller must have exclusive access to c for as long as it uses the pointer.
func (c *OnceLock[S, T]) GetMut() *T {
	if !c.once.IsCompleted() {
		return nil
	}
	return &c.value
}

// Set stores value if the cell is empty. It fails with ErrInitialized, and
// leaves the stored value alone, if the cell was already full. It blocks
// while another goroutine is initializing the cell.
func (c *OnceLock[S, T]) Set(value T) error {
	_, err := c.TryInsert(value)
	return err
}

// TryInsert stores value if the cell is empty and returns what the cell
// holds afterwards. If the cell was already full it returns the stored
// value together with ErrInitialized.
func (c *OnceLock[S, T]) TryInsert(value T) (T, error) {
	inserted := false
	current := c.GetOrInit(func() T {
		inserted = true
		return value
	})
	if !inserted {
		return current, ErrInitialized
	}
	return current, nil
}

// GetOrInit returns the value, initializing the cell with f if it is empty.
// Concurrent callers run at most one f at a time, and only one f's result is
// ever stored. If f panics the cell stays empty and the panic propagates.
func (c *OnceLock[S, T]) GetOrInit(f func() T) T {
	v, _ := c.GetOrTryInit(func() (T, error) {
		return f(), nil
	})
	return v
}

// GetOrTryInit is like GetOrInit, but f may fail. A failing f leaves the
// cell empty, returns f's error, and lets the next caller try again.
func (c *OnceLock[S, T]) GetOrTryInit(f func() (T, error)) (T, error) {
	if v, ok := c.Get(); ok {
		return v, nil
	}
	if err := c.initialize(f); err != nil {
		var zero T
		return zero, err
	}
	return c.value, nil
}

// GetMutOrInit is GetOrInit for a caller with exclusive access to c.
func (c *OnceLock[S, T]) GetMutOrInit(f func() T) *T {
	p, _ := c.GetMutOrTryInit(func() (T, error) {
		return f(), nil
	})
	return p
}

// GetMutOrTryInit is GetOrTryInit for a caller with exclusive access to c.
func (c *OnceLock[S, T]) GetMutOrTryInit(f func() (T, error)) (*T, error) {
	if !c.once.IsCompleted() {
		if err := c.initialize(f); err != nil {
			return nil, err
		}
	}
	return &c.value, nil
}

// Take empties the cell and returns what it held. The caller must have
// exclusive access to c.
func (c *OnceLock[S, T]) Take() (T, bool) {
	var zero T
	if !c.once.IsCompleted() {
		return zero, false
	}
	v := c.value
	// drop our reference so the old value can be collected
	c.value = zero
	c.once.reset()
	return v, true
}

// IntoInner returns the value, leaving c empty. It is meant as the last use
// of c.
func (c *OnceLock[S, T]) IntoInner() (T, bool) {
	return c.Take()
}

func (c *OnceLock[S, T]) String() string {
	if v, ok := c.Get(); ok {
		return fmt.Sprintf("OnceLock(%v)", v)
	}
	return "OnceLock(<uninit>)"
}

func (c *OnceLock[S, T]) initialize(f func() (T, error)) error {
	var err error
	// A failed initializer must never keep later ones from trying, so
	// poisoning is ignored.
	c.once.CallOnceForce(func(st *OnceState) {
		v, ferr := f()
		if ferr != nil {
			err = ferr
			st.SetIncomplete()
			return
		}
		c.value = v
	})
	return err
}
