// Package databuf implements the HASHPIPE data buffer (C2): a bounded,
// multi-slot shared-memory ring with per-slot EMPTY/FILLED state and
// blocking wait primitives that hand off fixed-size blocks between one
// producer and one consumer with no copying and no polling storms.
//
// Grounded on the teacher's shm package (mmap'd files under /dev/shm,
// cache-line-ish per-slot records) and other_examples/galaxyblack-shm-go's
// semaphore-embedded-in-shared-memory ring, generalized from a single
// producer/consumer byte stream into the spec's addressable slot ring with
// independently directed EMPTY/FILLED waits.
package databuf

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hashpipe-go/hashpipe/internal/hpsem"
	"github.com/hashpipe-go/hashpipe/internal/shmmap"
)

// State is a slot's EMPTY/FILLED classification.
type State int32

const (
	Empty State = iota
	Filled
)

func (s State) String() string {
	if s == Filled {
		return "FILLED"
	}
	return "EMPTY"
}

// waitTimeout bounds every blocking wait, per the spec's "on the order of a
// second" requirement; callers use ErrTimeout purely to publish liveness.
const waitTimeout = time.Second

// MinHeaderSize is the floor the spec imposes on header_size.
const MinHeaderSize = 96

// Buffer is an attached handle to one instance/buffer-id's data buffer.
type Buffer struct {
	region *shmmap.Region
	hdr    header
	cells  []byte // slot-state-cell area, length NBlock*cellSize
	data   []byte // payload area, length NBlock*BlockSize
}

// Create creates-or-attaches the data buffer for (instanceID, bufID) with
// the given sizing. If the region already existed, its sizing is verified
// against the caller's request and ErrSizeMismatch is returned on
// disagreement; otherwise a new, zeroed region is created.
func Create(dir string, instanceID, bufID int, headerSize, blockSize, nBlock int, tag string) (*Buffer, error) {
	if nBlock < 2 {
		return nil, fmt.Errorf("%w: n_block must be >= 2, got %d", ErrShm, nBlock)
	}
	if headerSize < MinHeaderSize {
		return nil, fmt.Errorf("%w: header_size must be >= %d, got %d", ErrShm, MinHeaderSize, headerSize)
	}

	total, payloadOff := layout(headerSize, blockSize, nBlock)

	path := shmmap.Path(dir, instanceID, fmt.Sprintf("buf%d", bufID))
	region, created, ok, err := shmmap.Create(path, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShm, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: existing buffer %d for instance %d", ErrSizeMismatch, bufID, instanceID)
	}

	b := &Buffer{
		region: region,
		hdr:    header{data: region.Data[:headerSize]},
		cells:  region.Data[headerSize : headerSize+nBlock*int(cellSize)],
		data:   region.Data[payloadOff:],
	}

	if created {
		b.hdr.setHeaderSize(uint32(headerSize))
		b.hdr.setBlockSize(uint32(blockSize))
		b.hdr.setNBlock(uint32(nBlock))
		b.hdr.setTag(tag)
		b.hdr.setSystemID(systemID(path))
		for i := 0; i < nBlock; i++ {
			cell := cellAt(b.cells, i)
			cell.state = int32(Empty)
			if err := hpsem.Init(&cell.semFilled, 0); err != nil {
				region.Close()
				return nil, fmt.Errorf("%w: %v", ErrShm, err)
			}
			if err := hpsem.Init(&cell.semFree, 1); err != nil {
				region.Close()
				return nil, fmt.Errorf("%w: %v", ErrShm, err)
			}
		}
	} else if int(b.hdr.HeaderSize()) != headerSize || int(b.hdr.BlockSize()) != blockSize || int(b.hdr.NBlock()) != nBlock {
		region.Close()
		return nil, fmt.Errorf("%w: buffer %d for instance %d", ErrSizeMismatch, bufID, instanceID)
	}

	return b, nil
}

// Attach opens an existing data buffer without creating or sizing it.
func Attach(dir string, instanceID, bufID int) (*Buffer, error) {
	path := shmmap.Path(dir, instanceID, fmt.Sprintf("buf%d", bufID))

	// Probe the header first with an unchecked mapping of the whole file to
	// learn sizing, then remap with that size verified. shmmap.Attach with
	// size=0 skips the size check.
	probe, err := shmmap.Attach(path, 0)
	if err != nil {
		if err == shmmap.ErrNotFound {
			return nil, fmt.Errorf("%w: buffer %d for instance %d", ErrNotFound, bufID, instanceID)
		}
		return nil, fmt.Errorf("%w: %v", ErrShm, err)
	}
	if len(probe.Data) < fixedFields {
		probe.Close()
		return nil, fmt.Errorf("%w: truncated header", ErrShm)
	}
	hdrSize := int(header{data: probe.Data}.HeaderSize())
	blockSize := int(header{data: probe.Data}.BlockSize())
	nBlock := int(header{data: probe.Data}.NBlock())
	probe.Close()

	total, payloadOff := layout(hdrSize, blockSize, nBlock)
	region, err := shmmap.Attach(path, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShm, err)
	}

	return &Buffer{
		region: region,
		hdr:    header{data: region.Data[:hdrSize]},
		cells:  region.Data[hdrSize : hdrSize+nBlock*int(cellSize)],
		data:   region.Data[payloadOff:],
	}, nil
}

// Detach drops the mapping without destroying the region.
func (b *Buffer) Detach() error {
	if err := b.region.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrShm, err)
	}
	return nil
}

// NBlock, BlockSize, HeaderSize, and Tag expose the buffer's fixed sizing.
func (b *Buffer) NBlock() int      { return int(b.hdr.NBlock()) }
func (b *Buffer) BlockSize() int   { return int(b.hdr.BlockSize()) }
func (b *Buffer) HeaderSize() int  { return int(b.hdr.HeaderSize()) }
func (b *Buffer) Tag() string      { return b.hdr.Tag() }
func (b *Buffer) SystemID() uint64 { return b.hdr.SystemID() }

// SlotData returns the raw payload window for slot, exposing only the
// pointer and size per the core's opaque-payload contract. Callers must
// only read a FILLED slot or only write an EMPTY slot they currently own.
func (b *Buffer) SlotData(slot int) ([]byte, error) {
	if slot < 0 || slot >= b.NBlock() {
		return nil, ErrInvalidSlot
	}
	bs := b.BlockSize()
	return b.data[slot*bs : (slot+1)*bs], nil
}

// BlockStatus reports slot's current state.
func (b *Buffer) BlockStatus(slot int) (State, error) {
	if slot < 0 || slot >= b.NBlock() {
		return 0, ErrInvalidSlot
	}
	return State(cellAt(b.cells, slot).state), nil
}

// TotalStatus returns a snapshot count of filled vs. empty slots, for
// observability only; it is not linearizable with concurrent transitions.
func (b *Buffer) TotalStatus() (nFilled, nEmpty int) {
	for i := 0; i < b.NBlock(); i++ {
		if State(cellAt(b.cells, i).state) == Filled {
			nFilled++
		} else {
			nEmpty++
		}
	}
	return nFilled, nEmpty
}

// WaitFilled blocks until slot reaches FILLED, returning immediately if it
// already is. Returns ErrTimeout on the order of one second of no
// transition, or ctx.Err() if ctx is done first.
func (b *Buffer) WaitFilled(ctx context.Context, slot int) error {
	if slot < 0 || slot >= b.NBlock() {
		return ErrInvalidSlot
	}
	return classify(hpsem.Wait(ctx, &cellAt(b.cells, slot).semFilled, waitTimeout))
}

// WaitFree blocks until slot reaches EMPTY, symmetric to WaitFilled.
func (b *Buffer) WaitFree(ctx context.Context, slot int) error {
	if slot < 0 || slot >= b.NBlock() {
		return ErrInvalidSlot
	}
	return classify(hpsem.Wait(ctx, &cellAt(b.cells, slot).semFree, waitTimeout))
}

// SetFilled transitions slot from EMPTY to FILLED and wakes a reader
// waiter. Called by the writer that currently owns the slot.
func (b *Buffer) SetFilled(slot int) error {
	if slot < 0 || slot >= b.NBlock() {
		return ErrInvalidSlot
	}
	cell := cellAt(b.cells, slot)
	if State(cell.state) != Empty {
		return fmt.Errorf("%w: set_filled on slot %d in state %s", ErrMisuse, slot, State(cell.state))
	}
	cell.state = int32(Filled)
	if err := hpsem.Post(&cell.semFilled); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return nil
}

// SetFree transitions slot from FILLED to EMPTY and wakes a writer waiter.
// Called by the reader that currently owns the slot.
func (b *Buffer) SetFree(slot int) error {
	if slot < 0 || slot >= b.NBlock() {
		return ErrInvalidSlot
	}
	cell := cellAt(b.cells, slot)
	if State(cell.state) != Filled {
		return fmt.Errorf("%w: set_free on slot %d in state %s", ErrMisuse, slot, State(cell.state))
	}
	cell.state = int32(Empty)
	if err := hpsem.Post(&cell.semFree); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return nil
}

func classify(err error) error {
	switch err {
	case nil:
		return nil
	case hpsem.ErrTimeout:
		return ErrTimeout
	default:
		if err == context.Canceled || err == context.DeadlineExceeded {
			return err
		}
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
}

func layout(headerSize, blockSize, nBlock int) (total, payloadOffset int) {
	cellsEnd := headerSize + nBlock*int(cellSize)
	const pageSize = 4096
	payloadOffset = (cellsEnd + pageSize - 1) &^ (pageSize - 1)
	total = payloadOffset + nBlock*blockSize
	return total, payloadOffset
}

func systemID(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}
