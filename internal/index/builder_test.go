package index

import (
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func testCid(t *testing.T, i int) cid.Cid {
	t.Helper()
	h, err := multihash.Sum([]byte(fmt.Sprintf("frame-%d", i)), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func TestBuilder(t *testing.T) {
	const n = 300
	b := NewBuilder(n, RejectDuplicate)

	cids := make([]cid.Cid, n)
	for i := range cids {
		cids[i] = testCid(t, i)
		require.NoError(t, b.Add(cids[i], uint64(i*64)))
	}
	require.EqualValues(t, n, b.Len())

	tbl := b.Finish()
	for i, c := range cids {
		off, ok := tbl.Lookup(DigestOf(c))
		require.True(t, ok)
		require.EqualValues(t, i*64, off)
	}

	require.Error(t, b.Add(cids[0], 0))
}

func TestBuilderZeroHint(t *testing.T) {
	b := NewBuilder(0, RejectDuplicate)
	tbl := b.Finish()
	require.EqualValues(t, 0, tbl.Len())

	_, ok := tbl.Lookup(DigestOf(testCid(t, 0)))
	require.False(t, ok)
}

func TestBuilderUndersizedHint(t *testing.T) {
	// A hint far below the stream length costs resizes but stays correct.
	b := NewBuilder(4, RejectDuplicate)
	for i := 0; i < 1000; i++ {
		require.NoError(t, b.Add(testCid(t, i), uint64(i)))
	}
	tbl := b.Finish()
	require.EqualValues(t, 1000, tbl.Len())
	for i := 0; i < 1000; i++ {
		off, ok := tbl.Lookup(DigestOf(testCid(t, i)))
		require.True(t, ok)
		require.EqualValues(t, i, off)
	}
}

func TestBuilderKeepFirst(t *testing.T) {
	b := NewBuilder(8, KeepFirst)
	c := testCid(t, 0)
	require.NoError(t, b.Add(c, 10))
	require.NoError(t, b.Add(c, 20))

	tbl := b.Finish()
	off, ok := tbl.Lookup(DigestOf(c))
	require.True(t, ok)
	require.EqualValues(t, 10, off)
}

func TestDigestOfStable(t *testing.T) {
	c := testCid(t, 42)
	require.Equal(t, DigestOf(c), DigestOf(c))

	d, err := cid.Decode(c.String())
	require.NoError(t, err)
	require.Equal(t, DigestOf(c), DigestOf(d))
}
