package index

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestTable(t *testing.T, n int, seed int64) (*Table, map[Digest]FrameOffset) {
	t.Helper()
	tbl := NewTable(TableOptions{})
	rng := rand.New(rand.NewSource(seed))
	entries := map[Digest]FrameOffset{}
	for len(entries) < n {
		d := normalizeDigest(rng.Uint64())
		if _, ok := entries[d]; ok {
			continue
		}
		entries[d] = rng.Uint64()
		require.NoError(t, tbl.Insert(d, entries[d]))
	}
	return tbl, entries
}

func TestLayoutRoundTrip(t *testing.T) {
	tbl, entries := buildTestTable(t, 2000, 10)

	var buf bytes.Buffer
	n, err := WriteTable(&buf, tbl)
	require.NoError(t, err)
	require.EqualValues(t, buf.Len(), n)
	require.EqualValues(t, headerSize+tbl.Capacity()*slotSize, n)

	r, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, tbl.Capacity(), r.Capacity())
	require.Equal(t, tbl.Len(), r.Len())
	require.Equal(t, tbl.MaxDisplacement(), r.MaxDisplacement())

	for d, off := range entries {
		got, ok := r.LookupDigest(d)
		require.True(t, ok)
		require.Equal(t, off, got)
	}

	_, ok := r.LookupDigest(normalizeDigest(rand.New(rand.NewSource(11)).Uint64()))
	require.False(t, ok)
}

func TestLayoutEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteTable(&buf, NewTable(TableOptions{}))
	require.NoError(t, err)

	r, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.EqualValues(t, 0, r.Len())

	_, ok := r.LookupDigest(1)
	require.False(t, ok)
}

func TestLayoutCorruptMagic(t *testing.T) {
	tbl, _ := buildTestTable(t, 10, 12)
	var buf bytes.Buffer
	_, err := WriteTable(&buf, tbl)
	require.NoError(t, err)

	b := buf.Bytes()
	b[0] ^= 0xff
	_, err = Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestLayoutUnknownVersionAndAlgo(t *testing.T) {
	tbl, _ := buildTestTable(t, 10, 13)
	var buf bytes.Buffer
	_, err := WriteTable(&buf, tbl)
	require.NoError(t, err)

	b := append([]byte(nil), buf.Bytes()...)
	b[8] = 0xfe
	_, err = Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)

	b = append([]byte(nil), buf.Bytes()...)
	b[10] = 0xfe
	_, err = Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestLayoutTruncated(t *testing.T) {
	tbl, _ := buildTestTable(t, 10, 14)
	var buf bytes.Buffer
	_, err := WriteTable(&buf, tbl)
	require.NoError(t, err)

	b := buf.Bytes()
	_, err = Load(b[:len(b)-slotSize])
	require.ErrorIs(t, err, ErrIndexTruncated)

	_, err = Load(b[:headerSize-1])
	require.ErrorIs(t, err, ErrIndexTruncated)
}

func TestLayoutOverflowingCapacity(t *testing.T) {
	// A header-only blob declaring a capacity whose size computation wraps
	// uint64 must be rejected, not accepted with out-of-range slots.
	b := make([]byte, headerSize)
	copy(b[0:8], layoutMagic)
	binary.LittleEndian.PutUint16(b[8:10], layoutVersion)
	binary.LittleEndian.PutUint16(b[10:12], digestXXH64)
	binary.LittleEndian.PutUint64(b[16:24], 1<<60) // capacity * slotSize wraps to 0
	binary.LittleEndian.PutUint64(b[24:32], 1)     // occupied
	binary.LittleEndian.PutUint64(b[32:40], 1<<60) // max displacement

	r, err := Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)
	require.Nil(t, r)

	// The same with the maximum representable capacity.
	binary.LittleEndian.PutUint64(b[16:24], ^uint64(0))
	_, err = Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestLayoutOccupiedExceedsCapacity(t *testing.T) {
	tbl, _ := buildTestTable(t, 10, 15)
	var buf bytes.Buffer
	_, err := WriteTable(&buf, tbl)
	require.NoError(t, err)

	b := buf.Bytes()
	// Declare more occupied slots than positions.
	copy(b[24:32], []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0})
	_, err = Load(b)
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestReaderTableRebuild(t *testing.T) {
	tbl, entries := buildTestTable(t, 500, 16)
	var buf bytes.Buffer
	_, err := WriteTable(&buf, tbl)
	require.NoError(t, err)

	r, err := Load(buf.Bytes())
	require.NoError(t, err)

	rebuilt := r.Table()
	require.Equal(t, tbl.Len(), rebuilt.Len())
	for d, off := range entries {
		got, ok := rebuilt.Lookup(d)
		require.True(t, ok)
		require.Equal(t, off, got)
	}
}

func TestOpenFile(t *testing.T) {
	tbl, entries := buildTestTable(t, 1000, 17)

	path := filepath.Join(t.TempDir(), "test.idx")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = WriteTable(f, tbl)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, r.Close())
	}()

	for d, off := range entries {
		got, ok := r.LookupDigest(d)
		require.True(t, ok)
		require.Equal(t, off, got)
	}
}
