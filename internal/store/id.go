// Package store implements the on-disk archive store: immutable CAR
// containers named by the hash of their bytes, each paired with a persisted
// content-addressed index, under a single locked directory.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
)

// idSize contains the size of an ID, in bytes.
const idSize = sha256.Size

// ID names an archive within the store. It is the sha2-256 of the archive
// file bytes.
type ID [idSize]byte

// ParseID converts the given string to an ID.
func ParseID(s string) (ID, error) {
	if len(s) != hex.EncodedLen(idSize) {
		return ID{}, fmt.Errorf("invalid length for ID: %q", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid ID: %s", err)
	}

	id := ID{}
	copy(id[:], b)

	return id, nil
}

// NewRandomID returns a randomly generated ID. When reading from rand fails,
// the function panics.
func NewRandomID() ID {
	id := ID{}
	_, err := io.ReadFull(rand.Reader, id[:])
	if err != nil {
		panic(err)
	}
	return id
}

const shortStr = 4

// Str returns the shortened string version of id.
func (id ID) Str() string {
	return hex.EncodeToString(id[:shortStr])
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Hash returns the ID for data.
func Hash(data []byte) ID {
	return sha256.Sum256(data)
}

// HashReader returns the ID for everything readable from rd.
func HashReader(rd io.Reader) (ID, error) {
	h := sha256.New()
	if _, err := io.Copy(h, rd); err != nil {
		return ID{}, err
	}
	return IDFromHash(h.Sum(nil)), nil
}

// IDFromHash returns the ID for the hash.
func IDFromHash(hash []byte) (id ID) {
	if len(hash) != idSize {
		panic("invalid hash type, not enough/too many bytes")
	}

	copy(id[:], hash)
	return id
}
