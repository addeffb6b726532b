// Package hpsem wraps process-shared POSIX semaphores embedded directly in
// mmap'd memory, giving the data buffer and the status lock cross-process
// blocking waits with bounded timeouts and no polling storms.
//
// Grounded on other_examples/galaxyblack-shm-go, which casts
// *sem.Semaphore directly over a field of a shared-memory struct
// (`(*sem.Semaphore)(&rw.readShared.SemSignal)`); this package formalizes
// that pattern behind a small typed API.
package hpsem

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	sem "github.com/tmthrgd/go-sem"
)

// Size is the byte footprint a Semaphore occupies in shared memory.
const Size = unsafe.Sizeof(sem.Semaphore{})

// pollInterval bounds how often a blocked waiter re-checks the semaphore and
// the cancellation context. It is short enough that OK returns within one
// scheduling quantum of a matching Post, per the timeout-liveness property.
const pollInterval = 2 * time.Millisecond

// At returns the semaphore embedded at the given address in mapped memory.
// The caller is responsible for the address staying inside a live mapping.
func At(p unsafe.Pointer) *sem.Semaphore {
	return (*sem.Semaphore)(p)
}

// Init initializes a process-shared semaphore in place with the given
// initial value. Safe to call only once per region lifetime (by whichever
// attacher created the region).
func Init(s *sem.Semaphore, value uint32) error {
	if err := s.Init(true, value); err != nil {
		return fmt.Errorf("hpsem: init: %w", err)
	}
	return nil
}

// Reinit force-recreates a semaphore that may be wedged by a dead holder. It
// destroys any existing kernel state first; destruction errors are ignored
// since the point is to recover regardless of current validity.
func Reinit(s *sem.Semaphore, value uint32) error {
	_ = s.Destroy()
	return Init(s, value)
}

// Post wakes one waiter, or leaves the semaphore signaled for the next
// waiter to arrive.
func Post(s *sem.Semaphore) error {
	if err := s.Post(); err != nil {
		return fmt.Errorf("hpsem: post: %w", err)
	}
	return nil
}

// Wait blocks, polling at pollInterval, until the semaphore is signaled, the
// context is done, or timeout elapses. It never calls the blocking sem_wait
// directly: TryWait plus a short sleep gives us a cancellation point on
// every iteration, which is what lets a worker tolerate being cancelled
// while blocked in a data-buffer wait (see the concurrency model).
func Wait(ctx context.Context, s *sem.Semaphore, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		err := s.TryWait()
		if err == nil {
			return nil
		}
		if err != sem.ErrWouldBlock {
			return fmt.Errorf("hpsem: wait: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		if time.Now().After(deadline) {
			return ErrTimeout
		}
	}
}
