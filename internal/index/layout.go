package index

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Persisted layout, all fields little-endian:
//
//	magic     [8]byte  "taigidx\n"
//	version   uint16   layout version, currently 1
//	algo      uint16   digest algorithm code, currently 1 (xxHash64)
//	flags     uint32   reserved, zero
//	capacity  uint64   number of slot positions
//	occupied  uint64   number of non-empty slots
//	maxdist   uint64   maximum probe displacement of any entry
//	slots     capacity * 16 bytes, {digest, offset} in position order,
//	          empty slots stored as {0xffffffffffffffff, 0}
//
// Slot positions are authoritative: loading reinterprets the slot array
// without rehashing, so open cost is O(1) aside from the bytes mapped.
const (
	layoutMagic   = "taigidx\n"
	layoutVersion = uint16(1)

	// digestXXH64 identifies the xxHash64 digest derivation. An index built
	// with an unknown algorithm code is unusable and rejected as corrupt.
	digestXXH64 = uint16(1)

	headerSize = 40
	slotSize   = 16
)

var (
	// ErrIndexCorrupt means the persisted bytes fail magic, version,
	// algorithm or header consistency validation. The index must be rebuilt
	// from its source archive.
	ErrIndexCorrupt = errors.New("index file corrupt")

	// ErrIndexTruncated means the byte length does not match the capacity
	// declared in the header. Handled like corruption.
	ErrIndexTruncated = errors.New("index file truncated")

	// ErrDuplicateDigest is returned by Insert under RejectDuplicate when
	// the digest is already present.
	ErrDuplicateDigest = errors.New("duplicate digest")

	// ErrTableFull is returned by Insert on a fixed-capacity table with no
	// free slot. Growing tables never return it.
	ErrTableFull = errors.New("table full")
)

// WriteTable serializes the table into w and returns the number of bytes
// written. The output is exactly headerSize + capacity*slotSize bytes.
func WriteTable(w io.Writer, t *Table) (int64, error) {
	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	copy(hdr[0:8], layoutMagic)
	binary.LittleEndian.PutUint16(hdr[8:10], layoutVersion)
	binary.LittleEndian.PutUint16(hdr[10:12], digestXXH64)
	binary.LittleEndian.PutUint32(hdr[12:16], 0)
	binary.LittleEndian.PutUint64(hdr[16:24], t.Capacity())
	binary.LittleEndian.PutUint64(hdr[24:32], t.Len())
	binary.LittleEndian.PutUint64(hdr[32:40], t.MaxDisplacement())
	if _, err := bw.Write(hdr[:]); err != nil {
		return 0, errors.Wrap(err, "write index header")
	}

	var buf [slotSize]byte
	for _, s := range t.slots {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(s.digest))
		binary.LittleEndian.PutUint64(buf[8:16], s.offset)
		if _, err := bw.Write(buf[:]); err != nil {
			return 0, errors.Wrap(err, "write index slots")
		}
	}

	if err := bw.Flush(); err != nil {
		return 0, errors.Wrap(err, "flush index")
	}
	return int64(headerSize) + int64(t.Capacity())*slotSize, nil
}

// Load validates b as a persisted layout and returns a Reader probing the
// slot array in place. The returned Reader shares b and never mutates it.
func Load(b []byte) (*Reader, error) {
	if len(b) < headerSize {
		return nil, errors.Wrapf(ErrIndexTruncated, "%d bytes is shorter than the header", len(b))
	}
	if string(b[0:8]) != layoutMagic {
		return nil, errors.Wrap(ErrIndexCorrupt, "bad magic")
	}
	if v := binary.LittleEndian.Uint16(b[8:10]); v != layoutVersion {
		return nil, errors.Wrapf(ErrIndexCorrupt, "unsupported layout version %d", v)
	}
	if a := binary.LittleEndian.Uint16(b[10:12]); a != digestXXH64 {
		return nil, errors.Wrapf(ErrIndexCorrupt, "unknown digest algorithm %d", a)
	}

	capacity := binary.LittleEndian.Uint64(b[16:24])
	occupied := binary.LittleEndian.Uint64(b[24:32])
	maxDist := binary.LittleEndian.Uint64(b[32:40])

	if occupied > capacity {
		return nil, errors.Wrapf(ErrIndexCorrupt, "occupied %d exceeds capacity %d", occupied, capacity)
	}
	// The declared capacity must not wrap the size computation below, or a
	// crafted header could pass the length check with out-of-range slots.
	if capacity > (math.MaxUint64-headerSize)/slotSize {
		return nil, errors.Wrapf(ErrIndexCorrupt, "capacity %d overflows layout size", capacity)
	}
	want := uint64(headerSize) + capacity*slotSize
	if uint64(len(b)) != want {
		return nil, errors.Wrapf(ErrIndexTruncated, "have %d bytes, header declares %d", len(b), want)
	}

	return &Reader{
		data:     b,
		capacity: capacity,
		occupied: occupied,
		maxDist:  maxDist,
	}, nil
}
