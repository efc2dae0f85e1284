package index

import (
	"github.com/pkg/errors"
)

// slot is a single table entry. Occupancy is marked by the digest sentinel,
// never by a side bitmap; this is fixed in the layout format.
type slot struct {
	digest Digest
	offset FrameOffset
}

// DuplicatePolicy controls what Insert does when the digest is already
// present in the table.
type DuplicatePolicy uint8

const (
	// RejectDuplicate makes Insert return ErrDuplicateDigest and leave the
	// table unchanged. This is the default: an archive's content identifiers
	// are expected to be unique.
	RejectDuplicate DuplicatePolicy = iota
	// KeepFirst silently keeps the resident entry.
	KeepFirst
	// Overwrite replaces the resident offset in place.
	Overwrite
)

// loadFactor is the occupancy ceiling; crossing it doubles the capacity.
const (
	loadFactorNum   = 9
	loadFactorDenom = 10

	minCapacity = 16
)

// TableOptions bundles the construction parameters for a Table.
type TableOptions struct {
	// Capacity is the initial number of slot positions. Zero yields a valid
	// empty table that allocates on first insert.
	Capacity uint64
	// Policy selects the duplicate-digest behavior, RejectDuplicate if unset.
	Policy DuplicatePolicy
	// FixedCapacity disables growth. A fixed table accepts inserts past the
	// load-factor ceiling and only fails with ErrTableFull when every slot
	// is occupied.
	FixedCapacity bool
}

// Table is an open-addressing hash table over digest/offset pairs using
// Robin Hood placement: an inserted entry evicts any resident that sits
// closer to its ideal bucket than the entry currently does. This keeps the
// variance of probe distances small and bounds lookups by the maximum
// displacement ever observed.
//
// A Table under construction is not safe for concurrent use. Once finalized
// and persisted it is only ever read.
type Table struct {
	slots    []slot
	occupied uint64
	maxDist  uint64

	policy DuplicatePolicy
	fixed  bool
}

// NewTable returns an empty table with the given options.
func NewTable(opts TableOptions) *Table {
	t := &Table{
		policy: opts.Policy,
		fixed:  opts.FixedCapacity,
	}
	if opts.Capacity > 0 {
		t.slots = emptySlots(opts.Capacity)
	}
	return t
}

func emptySlots(n uint64) []slot {
	s := make([]slot, n)
	for i := range s {
		s[i].digest = emptyDigest
	}
	return s
}

// Capacity returns the number of slot positions.
func (t *Table) Capacity() uint64 { return uint64(len(t.slots)) }

// Len returns the number of occupied slots.
func (t *Table) Len() uint64 { return t.occupied }

// MaxDisplacement returns the largest probe distance of any entry ever
// placed. It is an upper bound on the probes needed by any lookup.
func (t *Table) MaxDisplacement() uint64 { return t.maxDist }

// Insert places the digest/offset pair into the table. When the insert would
// push the occupancy past the load-factor ceiling the table grows first, so
// insertion only fails for duplicate digests (under RejectDuplicate) or a
// completely full fixed-capacity table.
func (t *Table) Insert(d Digest, off FrameOffset) error {
	if pos, found := t.probe(d); found {
		switch t.policy {
		case KeepFirst:
			return nil
		case Overwrite:
			t.slots[pos].offset = off
			return nil
		default:
			return errors.Wrapf(ErrDuplicateDigest, "digest %#x", uint64(d))
		}
	}

	if t.fixed {
		if t.occupied >= uint64(len(t.slots)) {
			return ErrTableFull
		}
	} else if t.overCeiling(t.occupied + 1) {
		t.grow()
	}

	t.place(slot{digest: d, offset: off})
	t.occupied++
	return nil
}

// overCeiling reports whether n occupied slots would exceed the load-factor
// ceiling for the current capacity.
func (t *Table) overCeiling(n uint64) bool {
	return n*loadFactorDenom > uint64(len(t.slots))*loadFactorNum
}

// place runs the Robin Hood walk for a candidate entry. The caller has
// already ruled out duplicates and ensured a free slot exists.
func (t *Table) place(cand slot) {
	capacity := uint64(len(t.slots))
	pos := bucketOf(cand.digest, capacity)
	dist := uint64(0)

	for {
		s := &t.slots[pos]
		if s.digest == emptyDigest {
			*s = cand
			t.observe(dist)
			return
		}

		// A resident closer to its bucket than the candidate is to its own
		// gives up the slot; the evicted entry continues the walk with its
		// recomputed distance.
		if rdist := distanceOf(s.digest, pos, capacity); rdist < dist {
			cand, *s = *s, cand
			t.observe(dist)
			dist = rdist
		}

		pos++
		if pos == capacity {
			pos = 0
		}
		dist++
	}
}

func (t *Table) observe(dist uint64) {
	if dist > t.maxDist {
		t.maxDist = dist
	}
}

// grow doubles the capacity and replays every occupied slot. Buckets depend
// on the capacity, so each digest is re-bucketed against the new size; the
// final occupancy mapping is independent of the replay order.
func (t *Table) grow() {
	newCap := uint64(len(t.slots)) * 2
	if newCap < minCapacity {
		newCap = minCapacity
	}

	old := t.slots
	t.slots = emptySlots(newCap)
	t.maxDist = 0
	for _, s := range old {
		if s.digest != emptyDigest {
			t.place(s)
		}
	}
}

// Lookup returns the frame offset stored for the digest. Probing starts at
// the ideal bucket and stops at an empty slot, at a resident provably closer
// to its own bucket than the probe has walked (the Robin Hood early exit),
// or past the recorded maximum displacement. An empty table answers in O(1).
func (t *Table) Lookup(d Digest) (FrameOffset, bool) {
	pos, found := t.probe(d)
	if !found {
		return 0, false
	}
	return t.slots[pos].offset, true
}

// probe locates the slot holding d, if any.
func (t *Table) probe(d Digest) (uint64, bool) {
	capacity := uint64(len(t.slots))
	if capacity == 0 || t.occupied == 0 {
		return 0, false
	}

	pos := bucketOf(d, capacity)
	for dist := uint64(0); dist <= t.maxDist; dist++ {
		s := t.slots[pos]
		if s.digest == d {
			return pos, true
		}
		if s.digest == emptyDigest {
			return 0, false
		}
		if distanceOf(s.digest, pos, capacity) < dist {
			return 0, false
		}
		pos++
		if pos == capacity {
			pos = 0
		}
	}
	return 0, false
}

// Remove deletes the entry for d and returns its offset. The run of entries
// following the vacated slot is shifted one position back until an empty
// slot or an entry already at its ideal bucket, which restores the Robin
// Hood ordering without a rehash.
func (t *Table) Remove(d Digest) (FrameOffset, bool) {
	pos, found := t.probe(d)
	if !found {
		return 0, false
	}

	capacity := uint64(len(t.slots))
	off := t.slots[pos].offset
	t.slots[pos] = slot{digest: emptyDigest}

	for {
		next := pos + 1
		if next == capacity {
			next = 0
		}
		s := t.slots[next]
		if s.digest == emptyDigest || distanceOf(s.digest, next, capacity) == 0 {
			break
		}
		t.slots[pos] = s
		t.slots[next] = slot{digest: emptyDigest}
		pos = next
	}

	t.occupied--
	return off, true
}
