// Package recordio encodes the small fixed-layout payload records the
// example thread modules exchange through data-buffer slots. The core
// itself treats slot payloads as opaque bytes (per the spec's Non-goals);
// this package is the convention cooperating example modules agree on,
// analogous to the original's examples/databuf.c defining a schema on top
// of the generic hashpipe_databuf_t.
package recordio

import (
	"encoding/binary"
	"math"
)

// PairSize is the encoded size of a Pair record.
const PairSize = 16

// Pair is a two-operand input record, mirroring the original examples'
// net_thread -> process_data_thread handoff of a pair of values to sum.
type Pair struct {
	A, B float64
}

// Encode writes p into buf[:PairSize] little-endian.
func (p Pair) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(p.A))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(p.B))
}

// DecodePair reads a Pair from buf[:PairSize].
func DecodePair(buf []byte) Pair {
	return Pair{
		A: math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
		B: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
	}
}

// ScalarSize is the encoded size of a single float64 result record.
const ScalarSize = 8

// EncodeScalar writes v into buf[:ScalarSize] little-endian.
func EncodeScalar(buf []byte, v float64) {
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(v))
}

// DecodeScalar reads a float64 from buf[:ScalarSize].
func DecodeScalar(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8]))
}
