package databuf

import "errors"

var (
	// ErrShm is returned when the backing region cannot be created/attached.
	ErrShm = errors.New("databuf: shared memory error")
	// ErrSizeMismatch is returned by Create when an existing region
	// disagrees with the requested sizing.
	ErrSizeMismatch = errors.New("databuf: size mismatch")
	// ErrNotFound is returned by Attach when no region exists.
	ErrNotFound = errors.New("databuf: region not found")
	// ErrTimeout is returned by WaitFilled/WaitFree when no transition
	// occurs before the bounded wait elapses. Callers should treat this as
	// a liveness heartbeat and re-enter the wait.
	ErrTimeout = errors.New("databuf: wait timed out")
	// ErrFatal signals an unexpected semaphore error; the worker should
	// exit rather than retry.
	ErrFatal = errors.New("databuf: fatal semaphore error")
	// ErrInvalidSlot is returned for a slot index outside [0, NBlock).
	ErrInvalidSlot = errors.New("databuf: invalid slot index")
	// ErrMisuse is returned by SetFilled/SetFree called against a slot not
	// in the expected prior state. The protocol tolerates this without
	// deadlocking future correct callers; it is surfaced so a buggy module
	// can be caught in tests rather than silently corrupting handoff order.
	ErrMisuse = errors.New("databuf: slot in wrong state for this transition")
)
