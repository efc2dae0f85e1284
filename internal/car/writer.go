package car

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Writer emits a container to an io.Writer, tracking the offset of every
// section it writes so the caller can index them.
type Writer struct {
	w      io.Writer
	offset uint64
}

// NewWriter writes the header section for the given roots and returns a
// writer positioned at the first data section.
func NewWriter(w io.Writer, roots []cid.Cid) (*Writer, error) {
	hdr := Header{Roots: roots, Version: 1}
	var buf bytes.Buffer
	if err := hdr.encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode car header")
	}

	var pre [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(pre[:], uint64(buf.Len()))
	if _, err := w.Write(pre[:n]); err != nil {
		return nil, errors.Wrap(err, "write car header")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "write car header")
	}

	return &Writer{w: w, offset: uint64(n) + uint64(buf.Len())}, nil
}

// WriteSection appends one data section and returns the offset of its
// varint prefix, the value an index entry for c should store.
func (w *Writer) WriteSection(c cid.Cid, data []byte) (uint64, error) {
	offset := w.offset
	cb := c.Bytes()
	sectionLen := uint64(len(cb) + len(data))
	if sectionLen > maxSectionSize {
		return 0, errors.Wrapf(ErrCarCorrupt, "section of %d bytes", sectionLen)
	}

	var pre [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(pre[:], sectionLen)
	if _, err := w.w.Write(pre[:n]); err != nil {
		return 0, errors.Wrap(err, "write section prefix")
	}
	if _, err := w.w.Write(cb); err != nil {
		return 0, errors.Wrap(err, "write section cid")
	}
	if _, err := w.w.Write(data); err != nil {
		return 0, errors.Wrap(err, "write section data")
	}

	w.offset += uint64(n) + sectionLen
	return offset, nil
}

// Offset returns the byte position the next section would be written at.
func (w *Writer) Offset() uint64 { return w.offset }

// ReadSection reads back a single section by the offset of its varint
// prefix, the random-access counterpart of Scanner. It returns the section
// CID and the frame payload.
func ReadSection(ra io.ReaderAt, offset uint64) (cid.Cid, []byte, error) {
	var pre [binary.MaxVarintLen64]byte
	n, err := ra.ReadAt(pre[:], int64(offset))
	if err != nil && err != io.EOF {
		return cid.Undef, nil, errors.Wrap(err, "read section prefix")
	}
	sectionLen, vn := binary.Uvarint(pre[:n])
	if vn <= 0 {
		return cid.Undef, nil, errors.Wrapf(ErrCarTruncated, "torn varint prefix at offset %d", offset)
	}
	if sectionLen == 0 || sectionLen > maxSectionSize {
		return cid.Undef, nil, errors.Wrapf(ErrCarCorrupt, "section of %d bytes at offset %d", sectionLen, offset)
	}

	buf := make([]byte, sectionLen)
	if _, err := ra.ReadAt(buf, int64(offset)+int64(vn)); err != nil {
		return cid.Undef, nil, errors.Wrapf(ErrCarTruncated, "short section at offset %d", offset)
	}

	cidLen, c, err := cid.CidFromBytes(buf)
	if err != nil {
		return cid.Undef, nil, errors.Wrapf(ErrCarCorrupt, "bad cid at offset %d: %v", offset, err)
	}
	return c, buf[cidLen:], nil
}
