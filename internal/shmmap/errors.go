package shmmap

import "errors"

var (
	// ErrNotFound is returned by Attach when no region exists at the path.
	ErrNotFound = errors.New("shmmap: region not found")
	// ErrSizeMismatch is returned when an existing region disagrees with the
	// size the caller expects.
	ErrSizeMismatch = errors.New("shmmap: size mismatch")
)
