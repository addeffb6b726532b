// Package sched applies the best-effort OS scheduling hints the spec asks
// the pipeline host to set on each worker: CPU affinity from a bitmask and
// a real-time-ish scheduling priority. Grounded in the corpus's general use
// of golang.org/x/sys/unix for raw OS calls (e.g. yanet2's netlink/unix
// usage) in place of the teacher's own syscall-package choice, since x/sys
// exposes SchedSetaffinity directly.
package sched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxCPU bounds the bitmask width this package understands.
const MaxCPU = 64

// Apply sets the calling OS thread's CPU affinity from mask (bit i pins CPU
// i) and its scheduling priority. A zero mask leaves affinity unset. Errors
// are always returned so the caller can decide whether a given module's
// RequireRealtime flag turns a failure fatal; by default the caller logs
// and proceeds.
func Apply(mask uint64, priority int) error {
	if mask != 0 {
		if err := setAffinity(mask); err != nil {
			return fmt.Errorf("%w: %v", ErrAffinity, err)
		}
	}
	if priority != 0 {
		if err := setPriority(priority); err != nil {
			return fmt.Errorf("%w: %v", ErrPriority, err)
		}
	}
	return nil
}

func setAffinity(mask uint64) error {
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < MaxCPU; i++ {
		if mask&(1<<uint(i)) != 0 {
			set.Set(i)
		}
	}
	// Pid 0 in SchedSetaffinity means "the calling thread" on Linux.
	return unix.SchedSetaffinity(0, &set)
}

// setPriority nices the calling OS thread, not the process. Apply is called
// after runtime.LockOSThread from the worker's own goroutine (worker.go), so
// os.Getpid() (the main thread's tid) would re-nice the wrong thread every
// time; unix.Gettid() is the calling thread's tid, matching PRIO_PROCESS's
// pid argument being interpreted as a tid when it names a thread rather than
// a whole process.
func setPriority(priority int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority)
}
