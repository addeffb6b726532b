// Package status implements the HASHPIPE status buffer (C1): a
// shared-memory, fixed-width-card text document guarded by a single
// coarse, named, cross-process lock.
package status

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	sem "github.com/tmthrgd/go-sem"
	"golang.org/x/sys/unix"

	"github.com/hashpipe-go/hashpipe/internal/hpsem"
	"github.com/hashpipe-go/hashpipe/internal/shmmap"
)

// DefaultMaxCards bounds the document to a fixed number of 80-byte cards.
// The real HASHPIPE buffer is considerably larger; this is a modest default
// sized for a handful of modules' worth of status keys.
const DefaultMaxCards = 512

// lockTimeout is how long Lock will wait before attempting stuck-lock
// recovery. Status traffic is human-scale, so ordinary contention never
// approaches this.
const lockTimeout = 2 * time.Second

const pidFieldSize = 8 // int64

func headerSize() int {
	sz := pidFieldSize + int(hpsem.Size)
	// round up to 8-byte alignment so the card area starts cleanly.
	return (sz + 7) &^ 7
}

// Buffer is an attached handle to one instance's status buffer.
type Buffer struct {
	region    *shmmap.Region
	lock      *sem.Semaphore
	holderPID *int64
	doc       document
}

// Attach idempotently creates-or-opens the status region for instanceID
// under dir (shmmap.DefaultDir if empty). The first attacher initializes
// the lock and the document to a single END card.
func Attach(dir string, instanceID int) (*Buffer, error) {
	path := shmmap.Path(dir, instanceID, "status")
	total := headerSize() + DefaultMaxCards*CardSize

	region, created, ok, err := shmmap.Create(path, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShm, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: existing status region at %s has unexpected size", ErrShm, path)
	}

	b := &Buffer{
		region:    region,
		holderPID: (*int64)(unsafe.Pointer(&region.Data[0])),
		lock:      hpsem.At(unsafe.Pointer(&region.Data[pidFieldSize])),
	}
	b.doc = document{buf: region.Data[headerSize():]}

	if created {
		if err := hpsem.Init(b.lock, 1); err != nil {
			region.Close()
			return nil, fmt.Errorf("%w: %v", ErrShm, err)
		}
		copy(b.doc.buf, emptyDocument(len(b.doc.buf)))
	}

	return b, nil
}

// Detach drops the mapping without destroying the region.
func (b *Buffer) Detach() error {
	if err := b.region.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrShm, err)
	}
	return nil
}

// Lock acquires the coarse status lock, recovering it if the previous
// holder's process no longer exists.
func (b *Buffer) Lock(ctx context.Context) error {
	err := hpsem.Wait(ctx, b.lock, lockTimeout)
	if err == nil {
		atomic.StoreInt64(b.holderPID, int64(os.Getpid()))
		return nil
	}
	if err != hpsem.ErrTimeout {
		return err
	}

	holder := atomic.LoadInt64(b.holderPID)
	if holder != 0 && processAlive(int(holder)) {
		return fmt.Errorf("status: lock held by live pid %d: %w", holder, hpsem.ErrTimeout)
	}

	if rerr := hpsem.Reinit(b.lock, 1); rerr != nil {
		return fmt.Errorf("%w: recovery failed: %v", ErrLockLost, rerr)
	}
	if werr := hpsem.Wait(ctx, b.lock, lockTimeout); werr != nil {
		return fmt.Errorf("%w: %v", ErrLockLost, werr)
	}
	atomic.StoreInt64(b.holderPID, int64(os.Getpid()))
	return ErrLockLost
}

// Unlock releases the status lock.
func (b *Buffer) Unlock() error {
	atomic.StoreInt64(b.holderPID, 0)
	return hpsem.Post(b.lock)
}

// WithLock runs fn with the lock held, guaranteeing release on any return
// path including a panic inside fn.
func (b *Buffer) WithLock(ctx context.Context, fn func() error) error {
	if err := b.Lock(ctx); err != nil && err != ErrLockLost {
		return err
	}
	defer b.Unlock()
	return fn()
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
