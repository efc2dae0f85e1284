package blocks

import (
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// HeaderBuilder assembles a BlockHeader. Build validates the required
// fields, encodes the header and seals it; the builder can be reused
// afterwards.
type HeaderBuilder struct {
	h BlockHeader
}

// NewHeaderBuilder returns an empty builder.
func NewHeaderBuilder() *HeaderBuilder {
	return &HeaderBuilder{}
}

// Parents sets the tipset the block builds on. Required.
func (b *HeaderBuilder) Parents(parents ...cid.Cid) *HeaderBuilder {
	b.h.parents = append([]cid.Cid(nil), parents...)
	return b
}

// Weight sets the accumulated chain weight.
func (b *HeaderBuilder) Weight(w uint64) *HeaderBuilder {
	b.h.weight = w
	return b
}

// Epoch sets the chain epoch.
func (b *HeaderBuilder) Epoch(e int64) *HeaderBuilder {
	b.h.epoch = e
	return b
}

// Miner sets the producer address. Required.
func (b *HeaderBuilder) Miner(addr string) *HeaderBuilder {
	b.h.miner = addr
	return b
}

// StateRoot sets the post-state tree root. Required.
func (b *HeaderBuilder) StateRoot(c cid.Cid) *HeaderBuilder {
	b.h.stateRoot = c
	return b
}

// MessageRoot sets the message tree root. Required.
func (b *HeaderBuilder) MessageRoot(c cid.Cid) *HeaderBuilder {
	b.h.messageRoot = c
	return b
}

// ReceiptRoot sets the receipt tree root. Required.
func (b *HeaderBuilder) ReceiptRoot(c cid.Cid) *HeaderBuilder {
	b.h.receiptRoot = c
	return b
}

// Timestamp sets the block time in seconds since the epoch.
func (b *HeaderBuilder) Timestamp(t uint64) *HeaderBuilder {
	b.h.timestamp = t
	return b
}

// Ticket sets the election ticket bytes.
func (b *HeaderBuilder) Ticket(t []byte) *HeaderBuilder {
	b.h.ticket = append([]byte(nil), t...)
	return b
}

// Signature sets the block signature bytes.
func (b *HeaderBuilder) Signature(s []byte) *HeaderBuilder {
	b.h.signature = append([]byte(nil), s...)
	return b
}

// Build validates the required fields and returns the sealed header.
func (b *HeaderBuilder) Build() (*BlockHeader, error) {
	if len(b.h.parents) == 0 {
		return nil, errors.New("header needs at least one parent")
	}
	if b.h.miner == "" {
		return nil, errors.New("header needs a miner address")
	}
	for _, c := range []cid.Cid{b.h.stateRoot, b.h.messageRoot, b.h.receiptRoot} {
		if !c.Defined() {
			return nil, errors.New("header needs state, message and receipt roots")
		}
	}

	h := b.h
	h.parents = append([]cid.Cid(nil), b.h.parents...)
	h.ticket = append([]byte(nil), b.h.ticket...)
	h.signature = append([]byte(nil), b.h.signature...)

	if err := h.seal(); err != nil {
		return nil, err
	}
	return &h, nil
}
