// Package registry implements the HASHPIPE thread registry and module
// descriptor (C3): a process-wide table of thread-module descriptors,
// looked up by name when the pipeline host assembles a pipeline, plus the
// per-worker thread-args record (C4's data model) that Init/Run exchange
// with the host.
//
// Per the spec's design note, modules are registered by an explicit call
// from main after the module set is chosen, not via package init() order.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashpipe-go/hashpipe/internal/databuf"
)

var (
	// ErrDuplicateName is returned by Register when a module with the same
	// name is already present.
	ErrDuplicateName = errors.New("registry: duplicate module name")
	// ErrNoSuchModule is returned by Lookup for an unknown name.
	ErrNoSuchModule = errors.New("registry: no such module")
)

// BufferFactory constructs or attaches the data buffer adjacent to a
// module, on demand, during thread init.
type BufferFactory func(dir string, instanceID, bufID int) (*databuf.Buffer, error)

// Descriptor is the immutable record describing one thread module.
type Descriptor struct {
	// Name is how the module is named on the command line and in the
	// pipeline configuration document.
	Name string
	// StatusKey is the status-buffer card key the host publishes this
	// module's lifecycle state under ("init", "running", "exit"). Empty
	// means the module does not publish lifecycle state.
	StatusKey string
	// Init is called once, with a transient attach to the status buffer
	// and any buffers the module's factories describe, before the
	// pipeline starts. May be nil.
	Init func(*ThreadArgs) error
	// Run is the module's main loop. It returns when the pipeline should
	// wind down (normally or on error).
	Run func(*ThreadArgs) error
	// InputBufferFactory/OutputBufferFactory, if non-nil, construct or
	// attach the adjacent data buffer. A module with no input (a pure
	// producer) or no output (a pure consumer) leaves the corresponding
	// factory nil.
	InputBufferFactory  BufferFactory
	OutputBufferFactory BufferFactory
	// RequireRealtime means a failed CPU-affinity or scheduling-priority
	// request should abort the worker rather than proceed best-effort.
	RequireRealtime bool
}

type table struct {
	mu      sync.RWMutex
	modules map[string]Descriptor
}

var global = &table{modules: make(map[string]Descriptor)}

// Register installs a descriptor in the process-wide table. Write-once per
// name.
func Register(d Descriptor) error {
	return global.register(d)
}

func (t *table) register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("registry: descriptor has empty name")
	}
	if d.Run == nil {
		return fmt.Errorf("registry: descriptor %q has nil Run", d.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.modules[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
	}
	t.modules[d.Name] = d
	return nil
}

// Lookup finds a registered descriptor by name.
func Lookup(name string) (Descriptor, error) {
	return global.lookup(name)
}

func (t *table) lookup(name string) (Descriptor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.modules[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNoSuchModule, name)
	}
	return d, nil
}

// List returns the registered module names in sorted order, e.g. for the
// CLI's --list.
func List() []string {
	return global.list()
}

func (t *table) list() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.modules))
	for name := range t.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the registry. Test-only: lets package tests register a
// fresh set of modules without cross-test pollution of the process-wide
// table.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.modules = make(map[string]Descriptor)
}
