package store

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/taigachain/taiga/internal/car"
	"github.com/taigachain/taiga/internal/fs"
	"github.com/taigachain/taiga/internal/index"
)

// zstdMagic starts every zstd frame; import transparently decompresses
// sources that carry it (e.g. snapshot files shipped as .car.zst).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ImportOptions bundles all options for ImportCAR.
type ImportOptions struct {
	// Verify recomputes each frame's multihash during the scan and aborts
	// the import on a mismatch.
	Verify bool
	// Jobs is the number of concurrent verification workers (default 2).
	Jobs int
	// EntryCountHint pre-sizes the index for the expected number of frames.
	// Zero is valid; an undersized hint only costs table resizes.
	EntryCountHint uint64
}

// ImportCAR copies the container at path into the store, builds its index
// and publishes both atomically. The source may be a plain CAR file or a
// zstd-compressed one. Duplicate sections within the container are indexed
// first-wins; importing an archive that is already present is a no-op.
func (s *Store) ImportCAR(ctx context.Context, path string, opts ImportOptions) (*Archive, error) {
	if opts.Jobs <= 0 {
		opts.Jobs = 2
	}

	src, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open import source")
	}
	defer src.Close()

	br := bufio.NewReader(src)
	var rd io.Reader = br
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open zstd stream")
		}
		defer dec.Close()
		rd = dec
		log.Debugf("import source %v is zstd compressed", path)
	}

	tmp, err := fs.TempFile(filepath.Join(s.dir, tmpDirName), "import-")
	if err != nil {
		return nil, errors.Wrap(err, "create import tempfile")
	}
	defer func() {
		_ = tmp.Close()
		_ = fs.RemoveIfExists(tmp.Name())
	}()

	hasher := sha256.New()
	tee := io.TeeReader(rd, io.MultiWriter(tmp, hasher))

	sc, err := car.NewScanner(tee)
	if err != nil {
		return nil, err
	}

	builder := index.NewBuilder(opts.EntryCountHint, index.KeepFirst)

	wg, wgCtx := errgroup.WithContext(ctx)
	checks := make(chan *car.Section, opts.Jobs)
	if opts.Verify {
		for i := 0; i < opts.Jobs; i++ {
			wg.Go(func() error {
				for sec := range checks {
					if err := verifyFrame(sec.CID, sec.Data); err != nil {
						return err
					}
				}
				return nil
			})
		}
	}

	scanErr := func() error {
		for {
			if err := wgCtx.Err(); err != nil {
				return err
			}
			sec, err := sc.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := builder.Add(sec.CID, sec.Offset); err != nil {
				return err
			}
			if opts.Verify {
				select {
				case checks <- sec:
				case <-wgCtx.Done():
					return wgCtx.Err()
				}
			}
		}
	}()
	close(checks)
	// A verification failure cancels the scan through the group context;
	// the worker error is the real cause.
	if werr := wg.Wait(); werr != nil {
		scanErr = werr
	}
	if scanErr != nil {
		return nil, errors.Wrapf(scanErr, "import %v", path)
	}

	if err := tmp.Sync(); err != nil {
		return nil, errors.Wrap(err, "sync archive")
	}

	id := IDFromHash(hasher.Sum(nil))
	for _, a := range s.archives {
		if a.ID == id {
			log.Infof("archive %v already present, skipping import", id.Str())
			return a, nil
		}
	}

	tbl := builder.Finish()
	if err := fs.Chmod(tmp.Name(), 0444); err != nil {
		return nil, errors.Wrap(err, "chmod archive")
	}
	if err := fs.PublishFile(tmp.Name(), s.carPath(id)); err != nil {
		return nil, errors.Wrap(err, "publish archive")
	}
	if err := s.writeIndex(id, tbl); err != nil {
		return nil, err
	}

	a, err := s.openArchive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.archives = append([]*Archive{a}, s.archives...)

	log.Infof("imported archive %v: %d frames, %d bytes", id.Str(), a.Entries(), a.Size)
	return a, nil
}
