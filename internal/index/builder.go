package index

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Builder constructs a Table from the stream of (content identifier, frame
// offset) pairs produced while scanning an archive. It exists only for the
// duration of one build; Finish hands the table over and invalidates the
// builder.
type Builder struct {
	tbl  *Table
	done bool
}

// NewBuilder returns a builder whose table is pre-sized for hint entries so
// a bulk build avoids repeated growth. A hint of zero is valid and yields an
// empty table; an undersized hint only costs extra resizes.
func NewBuilder(hint uint64, policy DuplicatePolicy) *Builder {
	return &Builder{
		tbl: NewTable(TableOptions{
			Capacity: capacityFor(hint),
			Policy:   policy,
		}),
	}
}

// capacityFor sizes the table so that hint entries stay below the
// load-factor ceiling.
func capacityFor(hint uint64) uint64 {
	if hint == 0 {
		return 0
	}
	capacity := (hint*loadFactorDenom + loadFactorNum - 1) / loadFactorNum
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return capacity
}

// Add derives the digest for c and inserts the pair into the table.
func (b *Builder) Add(c cid.Cid, offset FrameOffset) error {
	if b.done {
		return errors.New("builder already finished")
	}
	return b.tbl.Insert(DigestOf(c), offset)
}

// Len returns the number of entries added so far.
func (b *Builder) Len() uint64 {
	if b.done {
		return 0
	}
	return b.tbl.Len()
}

// Finish returns the completed table, ready for serialization. The builder
// must not be used afterwards.
func (b *Builder) Finish() *Table {
	b.done = true
	t := b.tbl
	b.tbl = nil
	return t
}
