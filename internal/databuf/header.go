package databuf

import (
	"encoding/binary"
	"unsafe"

	sem "github.com/tmthrgd/go-sem"
)

// TagSize bounds the payload-schema-name field recorded in the header for
// introspection tooling.
const TagSize = 32

// header mirrors the fixed fields living at the front of header_size bytes.
// Anything beyond these fields up to header_size is reserved padding the
// caller asked for and is left zeroed.
type header struct {
	data []byte // len(data) == headerSize, backed by the mapped region
}

const (
	offHeaderSize = 0
	offBlockSize  = 4
	offNBlock     = 8
	offTag        = 12
	offSystemID   = offTag + TagSize
	fixedFields   = offSystemID + 8
)

func (h header) setHeaderSize(v uint32) { binary.LittleEndian.PutUint32(h.data[offHeaderSize:], v) }
func (h header) HeaderSize() uint32     { return binary.LittleEndian.Uint32(h.data[offHeaderSize:]) }

func (h header) setBlockSize(v uint32) { binary.LittleEndian.PutUint32(h.data[offBlockSize:], v) }
func (h header) BlockSize() uint32     { return binary.LittleEndian.Uint32(h.data[offBlockSize:]) }

func (h header) setNBlock(v uint32) { binary.LittleEndian.PutUint32(h.data[offNBlock:], v) }
func (h header) NBlock() uint32     { return binary.LittleEndian.Uint32(h.data[offNBlock:]) }

func (h header) setTag(tag string) {
	b := h.data[offTag : offTag+TagSize]
	for i := range b {
		b[i] = 0
	}
	copy(b, tag)
}

func (h header) Tag() string {
	b := h.data[offTag : offTag+TagSize]
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (h header) setSystemID(v uint64) { binary.LittleEndian.PutUint64(h.data[offSystemID:], v) }
func (h header) SystemID() uint64     { return binary.LittleEndian.Uint64(h.data[offSystemID:]) }

// slotCell is the per-slot state record: an observable state word plus the
// two directed semaphores that implement the blocking wait protocol.
type slotCell struct {
	state     int32
	_         int32 // padding, keeps the semaphores 8-byte aligned
	semFilled sem.Semaphore
	semFree   sem.Semaphore
}

const cellSize = unsafe.Sizeof(slotCell{})

func cellAt(base []byte, slot int) *slotCell {
	return (*slotCell)(unsafe.Pointer(&base[uintptr(slot)*cellSize]))
}
