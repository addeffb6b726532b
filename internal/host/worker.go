package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/hashpipe-go/hashpipe/internal/registry"
	"github.com/hashpipe-go/hashpipe/internal/sched"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

// ErrAffinity is returned by runWorker when a RequireRealtime module could
// not get its requested CPU affinity or scheduling priority.
var ErrAffinity = errors.New("host: affinity/priority request failed")

const statusPublishTimeout = time.Second

// runWorker is one module's full lifecycle, expressed with a releaseStack
// standing in for the original's pthread_cleanup_push/pop chain: affinity
// and priority, attach status and data buffers with guaranteed detach,
// publish lifecycle state, call Run, clear the process-wide run flag so
// siblings wind down, then (while unwinding) publish "exit", mark finished
// and detach.
func runWorker(ctx context.Context, clearRunFlag context.CancelFunc, args *registry.ThreadArgs) error {
	// CPU affinity is a per-OS-thread property; pin this goroutine to its
	// OS thread for the lifetime of the worker so Apply's affinity call
	// means what it says.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	args.SetContext(ctx)

	var rel releaseStack
	defer rel.unwind()

	if err := sched.Apply(args.CPUMask, args.Priority); err != nil {
		log.Printf("host: %s: %v", args.Module.Name, err)
		if args.Module.RequireRealtime {
			return fmt.Errorf("host: %s: %w", args.Module.Name, ErrAffinity)
		}
	}

	st, err := status.Attach(args.ShmDir, args.InstanceID)
	if err != nil {
		return fmt.Errorf("host: %s: attach status: %w", args.Module.Name, err)
	}
	args.Status = st
	rel.push(func() { st.Detach() })

	rel.push(func() {
		publishStatus(st, args.Module.StatusKey, "exit")
		args.MarkFinished()
	})

	if args.Module.InputBufferFactory != nil {
		in, err := args.Module.InputBufferFactory(args.ShmDir, args.InstanceID, args.InputBufferID)
		if err != nil {
			return fmt.Errorf("host: %s: attach input buffer %d: %w", args.Module.Name, args.InputBufferID, err)
		}
		args.Input = in
		rel.push(func() { in.Detach() })
	}

	if args.Module.OutputBufferFactory != nil {
		out, err := args.Module.OutputBufferFactory(args.ShmDir, args.InstanceID, args.OutputBufferID)
		if err != nil {
			return fmt.Errorf("host: %s: attach output buffer %d: %w", args.Module.Name, args.OutputBufferID, err)
		}
		args.Output = out
		rel.push(func() { out.Detach() })
	}

	publishStatus(st, args.Module.StatusKey, "running")

	runErr := args.Module.Run(args)
	clearRunFlag()
	return runErr
}

func publishStatus(st *status.Buffer, key, value string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusPublishTimeout)
	defer cancel()
	if err := st.PutString(ctx, key, value); err != nil {
		log.Printf("host: publish status %s=%s: %v", key, value, err)
	}
}
