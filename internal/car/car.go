// Package car reads and writes CARv1 archive containers. A container is a
// header section followed by data sections, each prefixed with an unsigned
// varint length. The header is a CBOR map {roots, version}; a data section
// is the CID of a frame followed by the frame payload.
package car

import (
	"io"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// maxSectionSize caps a single section. Anything larger is treated as
// corruption instead of ballooning allocations.
const maxSectionSize = 1 << 30

var (
	// ErrCarTruncated means the container ended in the middle of a section.
	ErrCarTruncated = errors.New("car file truncated")

	// ErrCarCorrupt means the container violates the format: a bad header,
	// an oversized section or an undecodable CID.
	ErrCarCorrupt = errors.New("car file corrupt")
)

// Header is the decoded CAR header section.
type Header struct {
	Roots   []cid.Cid
	Version uint64
}

func (h *Header) encode(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajMap, 2); err != nil {
		return err
	}

	if err := writeTextString(w, "roots"); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(h.Roots))); err != nil {
		return err
	}
	for _, root := range h.Roots {
		if err := cbg.WriteCid(w, root); err != nil {
			return err
		}
	}

	if err := writeTextString(w, "version"); err != nil {
		return err
	}
	return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, h.Version)
}

func decodeHeader(r io.Reader) (*Header, error) {
	maj, n, err := cbg.CborReadHeader(r)
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajMap {
		return nil, errors.Wrap(ErrCarCorrupt, "header is not a map")
	}

	h := &Header{}
	for i := uint64(0); i < n; i++ {
		key, err := readTextString(r)
		if err != nil {
			return nil, err
		}

		switch key {
		case "roots":
			maj, cnt, err := cbg.CborReadHeader(r)
			if err != nil {
				return nil, err
			}
			if maj != cbg.MajArray {
				return nil, errors.Wrap(ErrCarCorrupt, "roots is not an array")
			}
			h.Roots = make([]cid.Cid, 0, cnt)
			for j := uint64(0); j < cnt; j++ {
				root, err := cbg.ReadCid(r)
				if err != nil {
					return nil, errors.Wrap(ErrCarCorrupt, "bad root cid")
				}
				h.Roots = append(h.Roots, root)
			}
		case "version":
			maj, v, err := cbg.CborReadHeader(r)
			if err != nil {
				return nil, err
			}
			if maj != cbg.MajUnsignedInt {
				return nil, errors.Wrap(ErrCarCorrupt, "version is not an unsigned int")
			}
			h.Version = v
		default:
			return nil, errors.Wrapf(ErrCarCorrupt, "unknown header field %q", key)
		}
	}

	if h.Version != 1 {
		return nil, errors.Wrapf(ErrCarCorrupt, "unsupported car version %d", h.Version)
	}
	return h, nil
}

func writeTextString(w io.Writer, s string) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajTextString, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readTextString(r io.Reader) (string, error) {
	maj, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return "", err
	}
	if maj != cbg.MajTextString {
		return "", errors.Wrap(ErrCarCorrupt, "header key is not a string")
	}
	if l > 64 {
		return "", errors.Wrap(ErrCarCorrupt, "header key too long")
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
