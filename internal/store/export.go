package store

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/car"
)

// ExportOptions bundles all options for Export.
type ExportOptions struct {
	// Compress wraps the output in a zstd stream.
	Compress bool
	// Roots become the header roots of the exported container.
	Roots []cid.Cid
}

// Export rewrites every frame in the store into a single fresh container on
// w, oldest archive first, deduplicating content across archives. The store
// is not modified.
func (s *Store) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	out := w
	var enc *zstd.Encoder
	if opts.Compress {
		var err error
		enc, err = zstd.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "open zstd stream")
		}
		out = enc
	}

	cw, err := car.NewWriter(out, opts.Roots)
	if err != nil {
		return err
	}

	// Deduplication keys on the full CID, not the index digest, so even a
	// digest collision between distinct CIDs cannot drop a frame here.
	seen := map[cid.Cid]bool{}
	var frames uint64
	for i := len(s.archives) - 1; i >= 0; i-- {
		a := s.archives[i]
		if _, err := a.f.Seek(0, 0); err != nil {
			return errors.Wrap(err, "rewind archive")
		}
		sc, err := car.NewScanner(a.f)
		if err != nil {
			return errors.Wrapf(err, "archive %v", a.ID.Str())
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			sec, err := sc.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "archive %v", a.ID.Str())
			}

			if seen[sec.CID] {
				continue
			}
			seen[sec.CID] = true

			if _, err := cw.WriteSection(sec.CID, sec.Data); err != nil {
				return err
			}
			frames++
		}

		if _, err := a.f.Seek(0, 0); err != nil {
			return errors.Wrap(err, "rewind archive")
		}
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return errors.Wrap(err, "close zstd stream")
		}
	}

	log.Infof("exported %d frames from %d archives", frames, len(s.archives))
	return nil
}
