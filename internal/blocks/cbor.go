package blocks

import (
	"io"

	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Small CBOR helpers on top of cbor-gen's major-type primitives.

const maxFieldBytes = 1 << 20

func writeInt64(w io.Writer, v int64) error {
	if v >= 0 {
		return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, uint64(v))
	}
	return cbg.WriteMajorTypeHeader(w, cbg.MajNegativeInt, uint64(-v-1))
}

func readInt64(r io.Reader) (int64, error) {
	maj, v, err := cbg.CborReadHeader(r)
	if err != nil {
		return 0, err
	}
	switch maj {
	case cbg.MajUnsignedInt:
		if v > 1<<63-1 {
			return 0, errors.New("integer overflows int64")
		}
		return int64(v), nil
	case cbg.MajNegativeInt:
		if v > 1<<63-1 {
			return 0, errors.New("integer overflows int64")
		}
		return -int64(v) - 1, nil
	}
	return 0, errors.Errorf("expected integer, got major type %d", maj)
}

func readUint64(r io.Reader) (uint64, error) {
	maj, v, err := cbg.CborReadHeader(r)
	if err != nil {
		return 0, err
	}
	if maj != cbg.MajUnsignedInt {
		return 0, errors.Errorf("expected unsigned integer, got major type %d", maj)
	}
	return v, nil
}

func writeByteString(w io.Writer, b []byte) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readByteString(r io.Reader) ([]byte, error) {
	maj, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajByteString {
		return nil, errors.Errorf("expected byte string, got major type %d", maj)
	}
	if l > maxFieldBytes {
		return nil, errors.Errorf("byte string of %d bytes too large", l)
	}
	if l == 0 {
		return nil, nil
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readTextString(r io.Reader) (string, error) {
	maj, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return "", err
	}
	if maj != cbg.MajTextString {
		return "", errors.Errorf("expected text string, got major type %d", maj)
	}
	if l > maxFieldBytes {
		return "", errors.Errorf("text string of %d bytes too large", l)
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
