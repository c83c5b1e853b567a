// Package heap implements the NR32 intrusive linked-list allocator: a
// first-fit, split-on-alloc, coalesce-on-free doubly linked list of
// blocks over a caller-owned byte slice, grounded on the reference
// allocator.rs.
package heap

import "encoding/binary"

// Magic marks a live block header for corruption detection.
const Magic = 0x1337

const (
	align       = 16
	headerSize  = 16 // size(4) + next(4) + prev(4) + flags/magic(4)
	flagUsed    = 1 << 0
)

// header layout, little-endian, packed at the start of every block:
//
//	offset 0: size (payload bytes, not including header)
//	offset 4: next block's offset into mem, or 0 if none
//	offset 8: prev block's offset into mem (unused for the block at base)
//	offset 12: low 16 bits = flags, high 16 bits = Magic
type Heap struct {
	mem   []byte
	base  int // offset into mem where the heap's managed region starts
	limit int // offset one past the managed region
}

func readHeader(b []byte) (size, next, prev uint32, flags uint16, magic uint16) {
	size = binary.LittleEndian.Uint32(b[0:4])
	next = binary.LittleEndian.Uint32(b[4:8])
	prev = binary.LittleEndian.Uint32(b[8:12])
	flags = binary.LittleEndian.Uint16(b[12:14])
	magic = binary.LittleEndian.Uint16(b[14:16])
	return
}

func writeHeader(b []byte, size, next, prev uint32, flags uint16) {
	binary.LittleEndian.PutUint32(b[0:4], size)
	binary.LittleEndian.PutUint32(b[4:8], next)
	binary.LittleEndian.PutUint32(b[8:12], prev)
	binary.LittleEndian.PutUint16(b[12:14], flags)
	binary.LittleEndian.PutUint16(b[14:16], Magic)
}

func roundUp(v, mult int) int  { return (v + mult - 1) &^ (mult - 1) }
func roundDown(v, mult int) int { return v &^ (mult - 1) }

// Init carves out [base, base+length) of mem as a single free block.
// base and length are rounded to 16-byte multiples (base up, length
// down); Init returns false if the resulting region is too small to hold
// one header plus one payload unit.
func (h *Heap) Init(mem []byte, base, length int) bool {
	b := roundUp(base, align)
	shrink := b - base
	l := roundDown(length-shrink, align)
	if l < headerSize+align {
		return false
	}
	h.mem = mem
	h.base = b
	h.limit = b + l
	writeHeader(h.mem[h.base:], uint32(l-headerSize), 0, 0, 0)
	return true
}

func (h *Heap) blockAt(off uint32) []byte { return h.mem[int(off):] }

// Alloc reserves at least size bytes, 16-byte aligned, first-fit,
// splitting the remainder back into the free list when it's big enough
// to host another block. alignReq values above 16 are rejected.
func (h *Heap) Alloc(size uint32, alignReq uint32) (uint32, bool) {
	if alignReq > align {
		return 0, false
	}
	need := uint32(roundUp(int(size), align))
	off := uint32(h.base)
	for int(off) < h.limit {
		blkSize, next, prev, flags, magic := readHeader(h.blockAt(off))
		if magic != Magic {
			return 0, false
		}
		if flags&flagUsed == 0 && blkSize >= need {
			remaining := blkSize - need
			if remaining >= headerSize+align {
				newOff := off + headerSize + need
				writeHeader(h.blockAt(newOff), remaining-headerSize, next, off, 0)
				if next != 0 {
					nsz, nnext, _, nflags, _ := readHeader(h.blockAt(next))
					writeHeader(h.blockAt(next), nsz, nnext, newOff, nflags)
				}
				writeHeader(h.blockAt(off), need, newOff, prev, flagUsed)
			} else {
				writeHeader(h.blockAt(off), blkSize, next, prev, flagUsed)
			}
			return off + headerSize, true
		}
		if next == 0 {
			break
		}
		off = next
	}
	return 0, false
}

// Free returns a previously allocated pointer (as returned by Alloc) to
// the free list, coalescing with adjacent free neighbors. Returns false
// if ptr does not point at a live block's payload (magic mismatch).
func (h *Heap) Free(ptr uint32) bool {
	if ptr < uint32(h.base)+headerSize {
		return false
	}
	off := ptr - headerSize
	size, next, prev, flags, magic := readHeader(h.blockAt(off))
	if magic != Magic || flags&flagUsed == 0 {
		return false
	}
	flags &^= flagUsed
	writeHeader(h.blockAt(off), size, next, prev, flags)

	// coalesce forward
	if next != 0 {
		nsize, nnext, _, nflags, nmagic := readHeader(h.blockAt(next))
		if nmagic == Magic && nflags&flagUsed == 0 {
			size = size + headerSize + nsize
			if nnext != 0 {
				nnsz, nnnext, _, nnflags, _ := readHeader(h.blockAt(nnext))
				writeHeader(h.blockAt(nnext), nnsz, nnnext, off, nnflags)
			}
			next = nnext
			writeHeader(h.blockAt(off), size, next, prev, flags)
		}
	}
	// coalesce backward (every block but the one at base has a prev)
	if off != uint32(h.base) {
		psize, pnext, pprev, pflags, pmagic := readHeader(h.blockAt(prev))
		if pmagic == Magic && pflags&flagUsed == 0 {
			_ = pnext
			newSize := psize + headerSize + size
			writeHeader(h.blockAt(prev), newSize, next, pprev, pflags)
			if next != 0 {
				nsz, nnext, _, nflags, _ := readHeader(h.blockAt(next))
				writeHeader(h.blockAt(next), nsz, nnext, prev, nflags)
			}
		}
	}
	return true
}

// FreeBytes sums the payload size of every free block, for the allocator
// round-trip test property.
func (h *Heap) FreeBytes() uint32 {
	var total uint32
	off := uint32(h.base)
	for int(off) < h.limit {
		size, next, _, flags, magic := readHeader(h.blockAt(off))
		if magic != Magic {
			break
		}
		if flags&flagUsed == 0 {
			total += size
		}
		if next == 0 {
			break
		}
		off = next
	}
	return total
}

// CheckMagics verifies every block in the list still carries Magic; used
// by tests to assert no corruption occurred.
func (h *Heap) CheckMagics() bool {
	off := uint32(h.base)
	for int(off) < h.limit {
		_, next, _, _, magic := readHeader(h.blockAt(off))
		if magic != Magic {
			return false
		}
		if next == 0 {
			break
		}
		off = next
	}
	return true
}
