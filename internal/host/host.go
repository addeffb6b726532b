// Package host implements the HASHPIPE pipeline host (C4): CLI parsing,
// module instantiation and buffer wiring, worker lifecycle, signal-driven
// cancellation, and orderly shutdown.
//
// Grounded on the teacher's main.go (signal.NotifyContext + a WaitGroup of
// goroutines, one per exchange feed) generalized from a fixed exchange
// table to an arbitrary, CLI-assembled module sequence, and on the
// original hashpipe.c's reverse-start/reverse-stop discipline.
package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hashpipe-go/hashpipe/internal/registry"
)

// startStagger is how long Run waits after launching each worker before
// launching the next, giving it time to reach its loop before an upstream
// producer might need it attached — the Go analogue of the original's
// sleep(3) between pthread_create calls. Kept short since our workers
// attach their own buffers rather than relying on the shell's timing.
const startStagger = 50 * time.Millisecond

// raiseMemlockRlimit best-effort raises RLIMIT_MEMLOCK to its hard max, so
// any module that wants to mlock its payload area can. Failure is logged,
// never fatal, per the original's "ignore failure" comment.
func raiseMemlockRlimit() {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlim); err != nil {
		log.Printf("host: getrlimit(RLIMIT_MEMLOCK): %v", err)
		return
	}
	rlim.Cur = rlim.Max
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &rlim); err != nil {
		log.Printf("host: setrlimit(RLIMIT_MEMLOCK): %v", err)
	}
}

// Run starts pipeline's workers in reverse order (consumer first), blocks
// until SIGINT/SIGTERM arrives or any worker's Run returns (either clears
// the process-wide run flag), then waits for the workers to return and
// returns the first worker error seen, if any. Shutdown is not ordered:
// every worker observes the same cancelled context at once, and they are
// not stopped or joined one by one.
func Run(pipeline *Pipeline) error {
	raiseMemlockRlimit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	n := len(pipeline.Threads)
	errs := make([]error, n)
	var wg sync.WaitGroup

	// Start in reverse order: the array's last entry is the pipeline's
	// final (consumer-most) stage, and it must be attached before any
	// upstream producer can safely fill its input buffer.
	for i := n - 1; i >= 0; i-- {
		args := pipeline.Threads[i]
		wg.Add(1)
		go func(i int, args *registry.ThreadArgs) {
			defer wg.Done()
			errs[i] = runWorker(ctx, cancel, args)
		}(i, args)

		if i > 0 {
			time.Sleep(startStagger)
		}
	}

	<-ctx.Done()

	// Give workers a bounded window to notice cancellation (their wait
	// loops poll at most every couple of milliseconds) and return. All of
	// them are waited for together, in no particular order; after 15s the
	// host stops waiting and returns without them.
	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(15 * time.Second):
		log.Printf("host: timed out waiting for workers to join")
	}

	return firstError(errs)
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// List renders the registered module names, one per line, for the CLI's
// --list.
func List() string {
	names := registry.List()
	out := ""
	for _, n := range names {
		out += fmt.Sprintln(n)
	}
	return out
}
