package status

import "errors"

var (
	// ErrAbsent is returned by a typed Get when the key is not present.
	ErrAbsent = errors.New("status: key absent")
	// ErrShm is returned when attach/detach of the backing region fails.
	ErrShm = errors.New("status: shared memory error")
	// ErrLockLost indicates the lock semaphore was in an invalid state and
	// had to be recovered by force-reinitialization.
	ErrLockLost = errors.New("status: lock lost, recovered")
	// ErrFull is returned when a Put would need to append a card but no
	// card slots remain before the fixed document size.
	ErrFull = errors.New("status: document full")
)
