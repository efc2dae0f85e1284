package index

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
)

// Reader answers lookups directly over the bytes of a persisted layout,
// typically a read-only memory mapping. It is immutable and lock-free: the
// probe loop performs only reads over memory that is never written after
// construction, so a single Reader may serve any number of concurrent
// callers. Lookups allocate nothing beyond stack-local state.
type Reader struct {
	data     []byte
	capacity uint64
	occupied uint64
	maxDist  uint64

	unmap func() error
}

// Lookup derives the digest for c and returns the stored frame offset.
// Absence is an expected outcome, not an error.
func (r *Reader) Lookup(c cid.Cid) (FrameOffset, bool) {
	return r.LookupDigest(DigestOf(c))
}

// LookupDigest probes the slot array with the same walk and early exits as
// Table.Lookup.
func (r *Reader) LookupDigest(d Digest) (FrameOffset, bool) {
	if r.capacity == 0 || r.occupied == 0 {
		return 0, false
	}

	pos := bucketOf(d, r.capacity)
	for dist := uint64(0); dist <= r.maxDist; dist++ {
		base := headerSize + pos*slotSize
		resident := Digest(binary.LittleEndian.Uint64(r.data[base : base+8]))
		if resident == d {
			return binary.LittleEndian.Uint64(r.data[base+8 : base+16]), true
		}
		if resident == emptyDigest {
			return 0, false
		}
		if distanceOf(resident, pos, r.capacity) < dist {
			return 0, false
		}
		pos++
		if pos == r.capacity {
			pos = 0
		}
	}
	return 0, false
}

// Capacity returns the number of slot positions in the layout.
func (r *Reader) Capacity() uint64 { return r.capacity }

// Len returns the number of occupied slots.
func (r *Reader) Len() uint64 { return r.occupied }

// MaxDisplacement returns the maximum probe displacement recorded at build
// time.
func (r *Reader) MaxDisplacement() uint64 { return r.maxDist }

// Table rebuilds an in-memory table from the layout, preserving slot
// positions without rehashing. It serves tooling that needs mutation, such
// as migration rebuilds; the Reader itself stays read-only.
func (r *Reader) Table() *Table {
	t := NewTable(TableOptions{Capacity: r.capacity})
	for pos := uint64(0); pos < r.capacity; pos++ {
		base := headerSize + pos*slotSize
		d := Digest(binary.LittleEndian.Uint64(r.data[base : base+8]))
		if d == emptyDigest {
			continue
		}
		t.slots[pos] = slot{
			digest: d,
			offset: binary.LittleEndian.Uint64(r.data[base+8 : base+16]),
		}
		t.occupied++
	}
	t.maxDist = r.maxDist
	return t
}

// Close releases the underlying mapping, if any. A Reader over plain bytes
// needs no cleanup and Close is a no-op.
func (r *Reader) Close() error {
	if r.unmap == nil {
		return nil
	}
	unmap := r.unmap
	r.unmap = nil
	r.data = nil
	return unmap()
}
