package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/taigachain/taiga/internal/car"
	"github.com/taigachain/taiga/internal/store"
)

// writeV0Store lays out a version 0 store: metadata plus flat *.car files at
// the root, no index files at all.
func writeV0Store(t *testing.T, nFrames int) (string, []cid.Cid) {
	t.Helper()
	dir := t.TempDir()

	var buf []byte
	var cids []cid.Cid
	{
		f, err := os.CreateTemp(dir, "build-")
		require.NoError(t, err)
		w, err := car.NewWriter(f, nil)
		require.NoError(t, err)
		for i := 0; i < nFrames; i++ {
			data := []byte(fmt.Sprintf("v0 frame %d", i))
			h, err := multihash.Sum(data, multihash.SHA2_256, -1)
			require.NoError(t, err)
			c := cid.NewCidV1(cid.Raw, h)
			_, err = w.WriteSection(c, data)
			require.NoError(t, err)
			cids = append(cids, c)
		}
		require.NoError(t, f.Close())
		buf, err = os.ReadFile(f.Name())
		require.NoError(t, err)
		require.NoError(t, os.Remove(f.Name()))
	}

	id := store.Hash(buf)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.String()+".car"), buf, 0644))

	meta := store.Meta{Version: 0, ID: store.NewRandomID().String()}
	require.NoError(t, store.WriteMeta(dir, meta))

	// v0 stores carry a token secret too.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.key"), make([]byte, 32), 0600))

	return dir, cids
}

func TestMigrateFromV0(t *testing.T) {
	dir, cids := writeV0Store(t, 20)

	// The store refuses to open before migration.
	_, err := store.Open(context.Background(), dir)
	require.ErrorIs(t, err, store.ErrNeedsMigration)

	require.NoError(t, Migrate(context.Background(), dir))

	meta, err := store.ReadMeta(dir)
	require.NoError(t, err)
	require.Equal(t, store.CurrentVersion, meta.Version)

	s, err := store.Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Archives(), 1)
	for _, c := range cids {
		data, err := s.Get(context.Background(), c)
		require.NoError(t, err)
		require.NotEmpty(t, data)
	}
}

func TestMigrateCurrentIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, store.Init(dir))
	require.NoError(t, Migrate(context.Background(), dir))

	meta, err := store.ReadMeta(dir)
	require.NoError(t, err)
	require.Equal(t, store.CurrentVersion, meta.Version)
}

func TestMigrateTooNew(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, store.Init(dir))

	meta, err := store.ReadMeta(dir)
	require.NoError(t, err)
	meta.Version = store.CurrentVersion + 1
	require.NoError(t, store.WriteMeta(dir, meta))

	require.Error(t, Migrate(context.Background(), dir))
}
