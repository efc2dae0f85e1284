// Package blocks holds the block header aggregate. Headers are built once
// through HeaderBuilder, encode deterministically to CBOR and cache their
// content identifier, so a header never changes after construction.
package blocks

import (
	"bytes"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/crypto/blake2b"
)

const blake2b256Code = multihash.BLAKE2B_MIN + 31

// BlockHeader is an immutable chain block header. Construct one with
// NewHeaderBuilder or DecodeHeader.
type BlockHeader struct {
	parents     []cid.Cid
	weight      uint64
	epoch       int64
	miner       string
	stateRoot   cid.Cid
	messageRoot cid.Cid
	receiptRoot cid.Cid
	timestamp   uint64
	ticket      []byte
	signature   []byte

	// filled at construction
	raw []byte
	cid cid.Cid
}

// Parents returns the tipset the block builds on.
func (h *BlockHeader) Parents() []cid.Cid {
	return append([]cid.Cid(nil), h.parents...)
}

// Weight returns the accumulated chain weight.
func (h *BlockHeader) Weight() uint64 { return h.weight }

// Epoch returns the chain epoch of the block.
func (h *BlockHeader) Epoch() int64 { return h.epoch }

// Miner returns the address string of the block producer.
func (h *BlockHeader) Miner() string { return h.miner }

// StateRoot returns the state tree after applying the block.
func (h *BlockHeader) StateRoot() cid.Cid { return h.stateRoot }

// MessageRoot returns the root of the block's messages.
func (h *BlockHeader) MessageRoot() cid.Cid { return h.messageRoot }

// ReceiptRoot returns the root of the message receipts.
func (h *BlockHeader) ReceiptRoot() cid.Cid { return h.receiptRoot }

// Timestamp returns the block time in seconds since the epoch.
func (h *BlockHeader) Timestamp() uint64 { return h.timestamp }

// Ticket returns the election ticket bytes.
func (h *BlockHeader) Ticket() []byte { return append([]byte(nil), h.ticket...) }

// Signature returns the block signature bytes.
func (h *BlockHeader) Signature() []byte { return append([]byte(nil), h.signature...) }

// Bytes returns the deterministic CBOR encoding of the header.
func (h *BlockHeader) Bytes() []byte { return append([]byte(nil), h.raw...) }

// Cid returns the content identifier of the encoded header, a blake2b-256
// CIDv1 computed once at construction.
func (h *BlockHeader) Cid() cid.Cid { return h.cid }

// seal encodes the header and caches bytes and cid.
func (h *BlockHeader) seal() error {
	var buf bytes.Buffer
	if err := h.encode(&buf); err != nil {
		return err
	}
	h.raw = buf.Bytes()

	sum := blake2b.Sum256(h.raw)
	mh, err := multihash.Encode(sum[:], blake2b256Code)
	if err != nil {
		return errors.Wrap(err, "encode multihash")
	}
	h.cid = cid.NewCidV1(cid.DagCBOR, mh)
	return nil
}

// encode writes the header as a fixed-order CBOR array.
func (h *BlockHeader) encode(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 10); err != nil {
		return err
	}

	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(h.parents))); err != nil {
		return err
	}
	for _, p := range h.parents {
		if err := cbg.WriteCid(w, p); err != nil {
			return err
		}
	}

	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, h.weight); err != nil {
		return err
	}
	if err := writeInt64(w, h.epoch); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajTextString, uint64(len(h.miner))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, h.miner); err != nil {
		return err
	}

	for _, c := range []cid.Cid{h.stateRoot, h.messageRoot, h.receiptRoot} {
		if err := cbg.WriteCid(w, c); err != nil {
			return err
		}
	}

	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, h.timestamp); err != nil {
		return err
	}
	if err := writeByteString(w, h.ticket); err != nil {
		return err
	}
	return writeByteString(w, h.signature)
}

// DecodeHeader parses a CBOR-encoded header produced by Bytes.
func DecodeHeader(b []byte) (*BlockHeader, error) {
	r := bytes.NewReader(b)

	maj, n, err := cbg.CborReadHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode header")
	}
	if maj != cbg.MajArray || n != 10 {
		return nil, errors.Errorf("header must be a 10 element array, got major type %d length %d", maj, n)
	}

	h := &BlockHeader{}

	maj, cnt, err := cbg.CborReadHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode parents")
	}
	if maj != cbg.MajArray {
		return nil, errors.New("parents must be an array")
	}
	for i := uint64(0); i < cnt; i++ {
		p, err := cbg.ReadCid(r)
		if err != nil {
			return nil, errors.Wrap(err, "decode parent cid")
		}
		h.parents = append(h.parents, p)
	}

	if h.weight, err = readUint64(r); err != nil {
		return nil, errors.Wrap(err, "decode weight")
	}
	if h.epoch, err = readInt64(r); err != nil {
		return nil, errors.Wrap(err, "decode epoch")
	}
	if h.miner, err = readTextString(r); err != nil {
		return nil, errors.Wrap(err, "decode miner")
	}

	for _, dst := range []*cid.Cid{&h.stateRoot, &h.messageRoot, &h.receiptRoot} {
		if *dst, err = cbg.ReadCid(r); err != nil {
			return nil, errors.Wrap(err, "decode root cid")
		}
	}

	if h.timestamp, err = readUint64(r); err != nil {
		return nil, errors.Wrap(err, "decode timestamp")
	}
	if h.ticket, err = readByteString(r); err != nil {
		return nil, errors.Wrap(err, "decode ticket")
	}
	if h.signature, err = readByteString(r); err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}

	if err := h.seal(); err != nil {
		return nil, err
	}
	return h, nil
}
