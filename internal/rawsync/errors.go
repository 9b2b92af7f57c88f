package rawsync

import "errors"

var (
	// ErrPoisoned is returned by Once.CallOnce when an earlier initializer
	// poisoned the Once.
	ErrPoisoned = errors.New("futexsync: Once instance has previously been poisoned")

	// ErrInitialized is returned when storing into a OnceLock that already
	// holds a value.
	ErrInitialized = errors.New("futexsync: OnceLock is already initialized")
)
