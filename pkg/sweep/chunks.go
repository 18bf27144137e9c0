package sweep

import (
	"encoding/binary"
	"math"
)

const bytesPerDouble = 8

// ChunkTable describes how the flux exchanged with one partition is split
// into messages.
type ChunkTable struct {
	Partition int
	Delayed   bool
	Total     int   // doubles
	Sizes     []int // doubles per chunk
	Offsets   []int // byte offset of each chunk
}

// Count returns the number of chunks.
func (t ChunkTable) Count() int { return len(t.Sizes) }

// SplitChunks splits total doubles into as many chunks as it takes to
// keep each within eagerLimit bytes, clamped to [1, angles]. Chunk sizes
// differ by at most one. When the clamp applies, chunks may exceed the
// eager limit.
func SplitChunks(total, angles, eagerLimit int) ChunkTable {
	n := 1
	if eagerLimit > 0 {
		per := max(eagerLimit/bytesPerDouble, 1)
		n = (total + per - 1) / per
	}
	n = min(n, angles, max(total, 1))
	n = max(n, 1)

	t := ChunkTable{Total: total, Sizes: make([]int, n), Offsets: make([]int, n)}
	base, rem := total/n, total%n
	off := 0
	for i := range n {
		t.Sizes[i] = base
		if i < rem {
			t.Sizes[i]++
		}
		t.Offsets[i] = off
		off += t.Sizes[i] * bytesPerDouble
	}
	return t
}

// span returns the double range of chunk i.
func (t ChunkTable) span(i int) (lo, hi int) {
	lo = t.Offsets[i] / bytesPerDouble
	return lo, lo + t.Sizes[i]
}

func encodeDoubles(v []float64) []byte {
	out := make([]byte, len(v)*bytesPerDouble)
	for i, x := range v {
		binary.LittleEndian.PutUint64(out[i*bytesPerDouble:], math.Float64bits(x))
	}
	return out
}

// decodeDoubles fills dst from src and returns the number of values
// copied, which is short when src is.
func decodeDoubles(dst []float64, src []byte) int {
	n := min(len(dst), len(src)/bytesPerDouble)
	for i := range n {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*bytesPerDouble:]))
	}
	return n
}
