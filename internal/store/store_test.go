package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/taigachain/taiga/internal/car"
)

func testFrame(t *testing.T, i int) (cid.Cid, []byte) {
	t.Helper()
	data := []byte(fmt.Sprintf("frame payload %d", i))
	h, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h), data
}

// writeTestCAR writes a container with n frames and returns its path
// together with the frames it holds.
func writeTestCAR(t *testing.T, dir string, n, seed int) (string, []cid.Cid, [][]byte) {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("src-%d.car", seed))
	f, err := os.Create(path)
	require.NoError(t, err)

	root, _ := testFrame(t, seed)
	w, err := car.NewWriter(f, []cid.Cid{root})
	require.NoError(t, err)

	var cids []cid.Cid
	var datas [][]byte
	for i := 0; i < n; i++ {
		c, data := testFrame(t, seed+i)
		_, err := w.WriteSection(c, data)
		require.NoError(t, err)
		cids = append(cids, c)
		datas = append(datas, data)
	}
	require.NoError(t, f.Close())
	return path, cids, datas
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, dir
}

func TestInitOpenClose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	require.Error(t, Init(dir), "double init must fail")

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, s.Meta().Version)
	require.Empty(t, s.Archives())

	key, err := s.AuthKey()
	require.NoError(t, err)
	require.Len(t, key, 32)

	require.NoError(t, s.Close())

	// The lock is gone, reopening works immediately.
	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestImportGet(t *testing.T) {
	s, dir := openTestStore(t)
	src, cids, datas := writeTestCAR(t, dir, 50, 0)

	a, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 50, a.Entries())

	for i, c := range cids {
		require.True(t, s.Has(c))
		data, err := s.Get(context.Background(), c)
		require.NoError(t, err)
		require.Equal(t, datas[i], data)
	}

	absent, _ := testFrame(t, 9999)
	require.False(t, s.Has(absent))
	_, err = s.Get(context.Background(), absent)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestImportIdempotent(t *testing.T) {
	s, dir := openTestStore(t)
	src, _, _ := writeTestCAR(t, dir, 10, 0)

	a1, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	a2, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, a1.ID, a2.ID)
	require.Len(t, s.Archives(), 1)
}

func TestImportCompressed(t *testing.T) {
	s, dir := openTestStore(t)
	src, cids, datas := writeTestCAR(t, dir, 20, 100)

	raw, err := os.ReadFile(src)
	require.NoError(t, err)

	zpath := filepath.Join(dir, "src.car.zst")
	zf, err := os.Create(zpath)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(zf)
	require.NoError(t, err)
	_, err = enc.Write(raw)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, zf.Close())

	a, err := s.ImportCAR(context.Background(), zpath, ImportOptions{Verify: true})
	require.NoError(t, err)
	require.EqualValues(t, 20, a.Entries())

	// The stored archive is the decompressed container.
	require.Equal(t, Hash(raw), a.ID)

	for i, c := range cids {
		data, err := s.Get(context.Background(), c)
		require.NoError(t, err)
		require.Equal(t, datas[i], data)
	}
}

func TestImportVerifyRejectsBadFrame(t *testing.T) {
	s, dir := openTestStore(t)

	// A section whose payload does not match its CID.
	c, _ := testFrame(t, 1)
	path := filepath.Join(dir, "bad.car")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := car.NewWriter(f, nil)
	require.NoError(t, err)
	_, err = w.WriteSection(c, []byte("tampered payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.ImportCAR(context.Background(), path, ImportOptions{Verify: true})
	require.Error(t, err)
	require.Empty(t, s.Archives())

	// Without verification the import goes through; the index trusts the
	// container.
	_, err = s.ImportCAR(context.Background(), path, ImportOptions{})
	require.NoError(t, err)
}

func TestReopenRebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	src, cids, datas := writeTestCAR(t, dir, 30, 200)
	a, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	idxPath := filepath.Join(dir, indexDirName, a.ID.String()+".idx")
	require.NoError(t, os.Remove(idxPath))

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(idxPath)
	require.NoError(t, err, "index must be rebuilt on open")

	for i, c := range cids {
		data, err := s.Get(context.Background(), c)
		require.NoError(t, err)
		require.Equal(t, datas[i], data)
	}
}

func TestReopenRebuildsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	src, cids, _ := writeTestCAR(t, dir, 10, 300)
	a, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	idxPath := filepath.Join(dir, indexDirName, a.ID.String()+".idx")
	require.NoError(t, os.Chmod(idxPath, 0644))
	require.NoError(t, os.WriteFile(idxPath, []byte("garbage"), 0644))

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	for _, c := range cids {
		require.True(t, s.Has(c))
	}
}

func TestVerifyArchive(t *testing.T) {
	s, dir := openTestStore(t)
	src, _, _ := writeTestCAR(t, dir, 25, 400)
	a, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)

	require.NoError(t, s.VerifyArchive(context.Background(), a.ID, 4))

	require.Error(t, s.VerifyArchive(context.Background(), ID{0xaa}, 1))
}

func TestVerifyArchiveWrongFileHash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	src, _, _ := writeTestCAR(t, dir, 5, 450)
	a, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Rename the archive and its index to a name that is not the hash of
	// the file bytes. The container itself is still well formed, so only
	// the hash check can catch this.
	wrong := Hash([]byte("not the file bytes"))
	require.NoError(t, os.Rename(
		filepath.Join(dir, carDirName, a.ID.String()+".car"),
		filepath.Join(dir, carDirName, wrong.String()+".car")))
	require.NoError(t, os.Rename(
		filepath.Join(dir, indexDirName, a.ID.String()+".idx"),
		filepath.Join(dir, indexDirName, wrong.String()+".idx")))

	s, err = Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	err = s.VerifyArchive(context.Background(), wrong, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "hashes to")
}

func TestExport(t *testing.T) {
	s, dir := openTestStore(t)

	src1, cids1, _ := writeTestCAR(t, dir, 10, 500)
	src2, cids2, _ := writeTestCAR(t, dir, 10, 505) // overlaps with src1
	_, err := s.ImportCAR(context.Background(), src1, ImportOptions{})
	require.NoError(t, err)
	_, err = s.ImportCAR(context.Background(), src2, ImportOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), &buf, ExportOptions{}))

	sc, err := car.NewScanner(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	got := map[string]bool{}
	for {
		sec, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.False(t, got[sec.CID.String()], "duplicate frame in export")
		got[sec.CID.String()] = true
	}

	want := map[string]bool{}
	for _, c := range append(cids1, cids2...) {
		want[c.String()] = true
	}
	require.Equal(t, want, got)
}

func TestExportCompressed(t *testing.T) {
	s, dir := openTestStore(t)
	src, cids, _ := writeTestCAR(t, dir, 5, 600)
	_, err := s.ImportCAR(context.Background(), src, ImportOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), &buf, ExportOptions{Compress: true}))
	require.True(t, bytes.HasPrefix(buf.Bytes(), zstdMagic))

	dec, err := zstd.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer dec.Close()

	sc, err := car.NewScanner(dec)
	require.NoError(t, err)
	var n int
	for {
		_, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, len(cids), n)
}

func TestOpenLocked(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = Open(ctx, dir)
	require.Error(t, err)
}

func TestOpenVersionChecks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	meta, err := ReadMeta(dir)
	require.NoError(t, err)

	meta.Version = CurrentVersion - 1
	require.NoError(t, WriteMeta(dir, meta))
	_, err = Open(context.Background(), dir)
	require.ErrorIs(t, err, ErrNeedsMigration)

	meta.Version = CurrentVersion + 1
	require.NoError(t, WriteMeta(dir, meta))
	_, err = Open(context.Background(), dir)
	require.ErrorIs(t, err, ErrStoreTooNew)
}

func TestParseID(t *testing.T) {
	id := Hash([]byte("data"))
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseID("short")
	require.Error(t, err)
	_, err = ParseID("zz" + id.String()[2:])
	require.Error(t, err)
}

func TestHashReader(t *testing.T) {
	data := []byte("some archive bytes")
	id, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, Hash(data), id)
}
