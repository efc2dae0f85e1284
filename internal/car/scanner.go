package car

import (
	"bufio"
	"bytes"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Section is one data section of a container.
type Section struct {
	// CID identifies the frame payload.
	CID cid.Cid
	// Offset is the byte position of the section's varint prefix within the
	// container. This is the value the index stores.
	Offset uint64
	// Length is the full section length including the varint prefix.
	Length uint64
	// Data is the frame payload, excluding the CID.
	Data []byte
}

// Scanner walks a container once, front to back, yielding each data section
// together with its byte offset. The underlying reader is consumed; a
// scanner cannot be restarted.
type Scanner struct {
	br     *bufio.Reader
	offset uint64
	header *Header
	err    error
}

// NewScanner reads and validates the header section and positions the
// scanner at the first data section.
func NewScanner(r io.Reader) (*Scanner, error) {
	s := &Scanner{br: bufio.NewReader(r)}

	hdrLen, n, err := readUvarint(s.br)
	if err != nil {
		if err == io.EOF {
			return nil, errors.Wrap(ErrCarTruncated, "missing header")
		}
		return nil, err
	}
	if hdrLen == 0 || hdrLen > maxSectionSize {
		return nil, errors.Wrapf(ErrCarCorrupt, "header section of %d bytes", hdrLen)
	}

	buf := make([]byte, hdrLen)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, errors.Wrap(ErrCarTruncated, "short header")
	}
	hdr, err := decodeHeader(bytes.NewReader(buf))
	if err != nil {
		if errors.Is(err, ErrCarCorrupt) {
			return nil, err
		}
		return nil, errors.Wrap(ErrCarCorrupt, err.Error())
	}

	s.header = hdr
	s.offset = uint64(n) + hdrLen
	return s, nil
}

// Header returns the decoded header section.
func (s *Scanner) Header() *Header { return s.header }

// Next returns the next data section. It returns io.EOF at a clean end of
// the container and ErrCarTruncated when the container stops mid-section.
func (s *Scanner) Next() (*Section, error) {
	if s.err != nil {
		return nil, s.err
	}

	sectionLen, n, err := readUvarint(s.br)
	if err != nil {
		if err == io.EOF {
			s.err = io.EOF
		} else {
			s.err = errors.Wrap(ErrCarTruncated, "torn varint prefix")
		}
		return nil, s.err
	}
	if sectionLen == 0 || sectionLen > maxSectionSize {
		s.err = errors.Wrapf(ErrCarCorrupt, "section of %d bytes at offset %d", sectionLen, s.offset)
		return nil, s.err
	}

	buf := make([]byte, sectionLen)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		s.err = errors.Wrapf(ErrCarTruncated, "short section at offset %d", s.offset)
		return nil, s.err
	}

	cidLen, c, err := cid.CidFromBytes(buf)
	if err != nil {
		s.err = errors.Wrapf(ErrCarCorrupt, "bad cid at offset %d: %v", s.offset, err)
		return nil, s.err
	}

	sec := &Section{
		CID:    c,
		Offset: s.offset,
		Length: uint64(n) + sectionLen,
		Data:   buf[cidLen:],
	}
	s.offset += sec.Length
	return sec, nil
}

// readUvarint decodes an unsigned varint from br and reports how many bytes
// it consumed. Offsets in a container are tracked from these counts.
func readUvarint(br *bufio.Reader) (uint64, int, error) {
	var x uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := br.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, i, err
		}
		if shift >= 64 || (shift == 63 && b > 1) {
			return 0, i + 1, errors.Wrap(ErrCarCorrupt, "varint overflows uint64")
		}
		if b < 0x80 {
			return x | uint64(b)<<shift, i + 1, nil
		}
		x |= uint64(b&0x7f) << shift
		shift += 7
	}
}
