package migration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/car"
	"github.com/taigachain/taiga/internal/fs"
	"github.com/taigachain/taiga/internal/index"
)

// migrateV0SplitDirs moves the flat v0 layout (*.car and *.idx files at the
// store root) into the car/ and index/ subdirectories.
func migrateV0SplitDirs(ctx context.Context, dir string) error {
	for _, d := range []string{"car", "index", "tmp"} {
		if err := fs.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return errors.Wrap(err, "create store layout")
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read store directory")
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}

		var sub string
		switch {
		case strings.HasSuffix(e.Name(), ".car"):
			sub = "car"
		case strings.HasSuffix(e.Name(), ".idx"):
			sub = "index"
		default:
			continue
		}

		oldpath := filepath.Join(dir, e.Name())
		newpath := filepath.Join(dir, sub, e.Name())
		log.Debugf("moving %v to %v", oldpath, newpath)
		if err := fs.Rename(oldpath, newpath); err != nil {
			return errors.Wrapf(err, "move %v", e.Name())
		}
	}

	return fs.FsyncDir(dir)
}

// migrateV1RebuildIndexes replaces every index that does not load under the
// current layout format with one rebuilt from its archive.
func migrateV1RebuildIndexes(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(filepath.Join(dir, "car"))
	if err != nil {
		return errors.Wrap(err, "read car directory")
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".car") {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ".car")
		idxPath := filepath.Join(dir, "index", name+".idx")

		if r, err := index.OpenFile(idxPath); err == nil {
			_ = r.Close()
			continue
		}

		log.Infof("rebuilding index for archive %v", name)
		if err := rebuildIndex(ctx, dir, filepath.Join(dir, "car", e.Name()), idxPath); err != nil {
			return errors.Wrapf(err, "rebuild index for %v", name)
		}
	}
	return nil
}

// rebuildIndex scans the archive at carPath and publishes a fresh index at
// idxPath via the tmp directory.
func rebuildIndex(ctx context.Context, dir, carPath, idxPath string) error {
	f, err := fs.Open(carPath)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer f.Close()

	sc, err := car.NewScanner(f)
	if err != nil {
		return err
	}

	b := index.NewBuilder(0, index.KeepFirst)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sec, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := b.Add(sec.CID, sec.Offset); err != nil {
			return err
		}
	}

	tmp, err := fs.TempFile(filepath.Join(dir, "tmp"), "index-")
	if err != nil {
		return errors.Wrap(err, "create index tempfile")
	}
	if _, err := index.WriteTable(tmp, b.Finish()); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "sync index")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close index")
	}

	return fs.PublishFile(tmp.Name(), idxPath)
}
