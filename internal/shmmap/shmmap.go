// Package shmmap provides the mmap'd-file backing shared by the status and
// data buffers: open-or-create, truncate, page-aligned mapping, and the
// deterministic path naming that lets a fresh process re-attach to an
// already-running instance's regions.
package shmmap

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultDir is where regions live when no override is configured, mirroring
// the teacher's use of /dev/shm as a RAM-backed mmap target.
const DefaultDir = "/dev/shm"

// Region is a single mmap'd shared-memory-backed file.
type Region struct {
	path string
	file *os.File
	Data []byte
}

// Path deterministically derives the backing file path for an instance and a
// discriminator ("status", or a data-buffer id rendered as "buf%d").
func Path(dir string, instanceID int, discriminator string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, fmt.Sprintf("hashpipe.%d.%s", instanceID&0x3f, discriminator))
}

// Create opens or creates the region at path, sizing a new (empty) file to
// size and reporting via created whether this call initialized a new, zeroed
// region. An existing region found at a different size is left unchanged and
// no region is returned (nil, created=false, ok=false) so the caller can
// raise SizeMismatch.
func Create(path string, size int) (r *Region, created bool, ok bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, false, fmt.Errorf("shmmap: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, false, fmt.Errorf("shmmap: stat %s: %w", path, err)
	}

	if fi.Size() == 0 {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, false, false, fmt.Errorf("shmmap: truncate %s: %w", path, err)
		}
		created = true
	} else if fi.Size() != int64(size) {
		f.Close()
		return nil, false, false, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, false, fmt.Errorf("shmmap: mmap %s: %w", path, err)
	}

	return &Region{path: path, file: f, Data: data}, created, true, nil
}

// Attach opens an existing region without creating one.
func Attach(path string, size int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("shmmap: %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("shmmap: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmmap: stat %s: %w", path, err)
	}
	if size > 0 && fi.Size() != int64(size) {
		f.Close()
		return nil, fmt.Errorf("shmmap: %s: %w", path, ErrSizeMismatch)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmmap: mmap %s: %w", path, err)
	}

	return &Region{path: path, file: f, Data: data}, nil
}

// Close unmaps and closes the region. It does not delete the backing file;
// per the spec, teardown is an explicit, external operation.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	if err := unix.Munmap(r.Data); err != nil {
		return fmt.Errorf("shmmap: munmap %s: %w", r.path, err)
	}
	return r.file.Close()
}

// Destroy removes the backing file; it does not unmap any live mapping of
// it. Used by out-of-core cleanup tooling, never by a worker on its own exit.
func Destroy(path string) error {
	return os.Remove(path)
}

// Path returns the backing file path.
func (r *Region) Path() string { return r.path }
