package sched

import "errors"

var (
	// ErrAffinity wraps a failed CPU-affinity request.
	ErrAffinity = errors.New("sched: affinity error")
	// ErrPriority wraps a failed scheduling-priority request.
	ErrPriority = errors.New("sched: priority error")
)
