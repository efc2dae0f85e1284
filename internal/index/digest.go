// Package index implements the persistent content-addressed index that maps
// the digest of a content identifier to the byte offset of its frame inside
// an immutable archive container.
//
// The index is a fixed-capacity Robin Hood hash table. It is built once per
// archive by a Builder, persisted in a compact binary layout, and afterwards
// queried read-only for the lifetime of the process, typically through a
// memory-mapped Reader.
package index

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/ipfs/go-cid"
)

// Digest is the fixed-width reduction of a content identifier used for table
// placement. Two distinct identifiers may collide on Digest with negligible
// probability; the index treats a digest match as proof of identity and
// leaves frame verification to the consumer.
type Digest uint64

// FrameOffset is a byte position of a frame inside the archive container.
type FrameOffset = uint64

// emptyDigest marks an unoccupied slot. DigestOf never produces this value,
// so a stored digest can never be mistaken for an empty slot.
const emptyDigest = Digest(math.MaxUint64)

// DigestOf derives the table digest for a content identifier. The derivation
// is pure and stable across runs and processes, which the persisted layout
// depends on. The layout header records the algorithm code so a reader can
// refuse an index built with a different derivation.
func DigestOf(c cid.Cid) Digest {
	return normalizeDigest(xxhash.Sum64(c.Bytes()))
}

// normalizeDigest maps the raw 64-bit hash into the digest domain, reserving
// the maximum value as the empty-slot sentinel.
func normalizeDigest(sum uint64) Digest {
	if sum == math.MaxUint64 {
		sum--
	}
	return Digest(sum)
}

// bucketOf returns the ideal table position for a digest. The reduction is a
// plain modulo, so table capacity may be arbitrary; this is a property of the
// layout format, not an implementation detail.
func bucketOf(d Digest, capacity uint64) uint64 {
	return uint64(d) % capacity
}

// distanceOf returns the number of probes from the digest's ideal bucket to
// the position at, wrapping around the table end.
func distanceOf(d Digest, at, capacity uint64) uint64 {
	return (at + capacity - bucketOf(d, capacity)) % capacity
}
