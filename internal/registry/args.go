package registry

import (
	"context"
	"sync"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
	"github.com/hashpipe-go/hashpipe/internal/status"
)

// ThreadArgs is the per-worker mutable record (C4's data model) that the
// host allocates before a module's Init runs and destroys after the
// worker's Run has returned and been joined. Only the owning worker
// mutates it once the pipeline has started; the host only reads Finished.
type ThreadArgs struct {
	InstanceID     int
	ShmDir         string
	InputBufferID  int
	OutputBufferID int
	CPUMask        uint64
	Priority       int
	// Options carries -o/--option K=V pairs recorded against this module
	// on the command line, plus any options loaded from a pipeline
	// configuration document.
	Options map[string]string

	Module Descriptor

	Status *status.Buffer
	Input  *databuf.Buffer
	Output *databuf.Buffer

	mu         sync.Mutex
	finished   bool
	finishedCh chan struct{}
	ctx        context.Context
}

// NewThreadArgs allocates a ThreadArgs for one worker.
func NewThreadArgs(instanceID int, shmDir string, inputBufID, outputBufID int) *ThreadArgs {
	return &ThreadArgs{
		InstanceID:     instanceID,
		ShmDir:         shmDir,
		InputBufferID:  inputBufID,
		OutputBufferID: outputBufID,
		Options:        make(map[string]string),
		finishedCh:     make(chan struct{}),
	}
}

// MarkFinished sets the finished flag and releases any waiter blocked on
// Done. Safe to call more than once or from any goroutine.
func (a *ThreadArgs) MarkFinished() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finished {
		a.finished = true
		close(a.finishedCh)
	}
}

// Finished reports whether MarkFinished has been called.
func (a *ThreadArgs) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Done returns a channel closed when the worker has finished, standing in
// for the original's finished flag + condition variable pair.
func (a *ThreadArgs) Done() <-chan struct{} {
	return a.finishedCh
}

// SetContext is called once by the host before Run so the module can
// observe the process-wide run flag via ctx.Done()/ctx.Err(). Modules
// should treat it as the cooperative, polite cancellation signal the spec
// describes; it is not forceful preemption.
func (a *ThreadArgs) SetContext(ctx context.Context) { a.ctx = ctx }

// Context returns the run-flag context. Never nil: before Init/Run have
// been wired to a host, it is context.Background().
func (a *ThreadArgs) Context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// Running reports whether the process-wide run flag is still set.
func (a *ThreadArgs) Running() bool {
	return a.Context().Err() == nil
}
