package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/auth"
	"github.com/taigachain/taiga/internal/car"
	"github.com/taigachain/taiga/internal/fs"
	"github.com/taigachain/taiga/internal/index"
)

// Store directory layout:
//
//	meta.json     durable settings, see Meta
//	auth.key      secret for permission tokens
//	LOCK          held while the store is open
//	tmp/          scratch space, files are published into place by rename
//	car/<ID>.car  immutable archive containers
//	index/<ID>.idx persisted index, one per archive
const (
	carDirName   = "car"
	indexDirName = "index"
	tmpDirName   = "tmp"
	authKeyName  = "auth.key"
)

var (
	// ErrNotFound means no archive in the store holds the requested content.
	ErrNotFound = errors.New("content not found")

	// ErrNeedsMigration means the store layout predates this binary; run
	// the migrate command before opening it.
	ErrNeedsMigration = errors.New("store needs migration, run 'taiga migrate'")

	// ErrStoreTooNew means the store was written by a newer binary.
	ErrStoreTooNew = errors.New("store version is newer than this binary supports")
)

// Archive is one immutable container and its index, opened read-only.
type Archive struct {
	ID   ID
	Size int64

	f     *os.File
	idx   *index.Reader
	added time.Time
}

// Entries returns the number of indexed frames in the archive.
func (a *Archive) Entries() uint64 { return a.idx.Len() }

// Index exposes the archive's index reader for inspection tooling.
func (a *Archive) Index() *index.Reader { return a.idx }

// Store is an open archive store. Get and Has only read immutable state and
// are safe for concurrent use; Import and Close are not.
type Store struct {
	dir  string
	meta Meta
	lock *storeLock

	// newest first
	archives []*Archive
}

// Init creates the directory layout for a new store, including the token
// secret. The directory must be empty or missing.
func Init(dir string) error {
	for _, d := range []string{dir, filepath.Join(dir, carDirName), filepath.Join(dir, indexDirName), filepath.Join(dir, tmpDirName)} {
		if err := fs.MkdirAll(d, 0755); err != nil {
			return errors.Wrap(err, "create store layout")
		}
	}

	if _, err := fs.Stat(filepath.Join(dir, metaName)); err == nil {
		return errors.Errorf("store already initialized at %v", dir)
	}

	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, authKeyName), key, 0600); err != nil {
		return errors.Wrap(err, "write token secret")
	}

	if err := WriteMeta(dir, NewMeta()); err != nil {
		return err
	}

	log.Infof("initialized store at %v", dir)
	return nil
}

// Open acquires the store lock, validates the layout version and opens every
// archive together with its index. A missing or unreadable index is rebuilt
// from its archive.
func Open(ctx context.Context, dir string) (*Store, error) {
	lock, err := acquireLock(ctx, dir)
	if err != nil {
		return nil, err
	}

	s := &Store{dir: dir, lock: lock}
	if err := s.open(ctx); err != nil {
		_ = lock.release()
		return nil, err
	}
	return s, nil
}

func (s *Store) open(ctx context.Context) error {
	meta, err := ReadMeta(s.dir)
	if err != nil {
		return err
	}
	if meta.Version > CurrentVersion {
		return errors.Wrapf(ErrStoreTooNew, "store version %d, supported %d", meta.Version, CurrentVersion)
	}
	if meta.Version < CurrentVersion {
		return errors.Wrapf(ErrNeedsMigration, "store version %d, current %d", meta.Version, CurrentVersion)
	}
	s.meta = meta

	entries, err := os.ReadDir(filepath.Join(s.dir, carDirName))
	if err != nil {
		return errors.Wrap(err, "read car directory")
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".car") {
			continue
		}
		id, err := ParseID(strings.TrimSuffix(e.Name(), ".car"))
		if err != nil {
			log.Warnf("ignoring stray file %v in car directory", e.Name())
			continue
		}

		a, err := s.openArchive(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "open archive %v", id.Str())
		}
		s.archives = append(s.archives, a)
	}

	sort.Slice(s.archives, func(i, j int) bool {
		return s.archives[i].added.After(s.archives[j].added)
	})

	log.Debugf("opened store %v with %d archives", s.meta.ID, len(s.archives))
	return nil
}

func (s *Store) carPath(id ID) string {
	return filepath.Join(s.dir, carDirName, id.String()+".car")
}

func (s *Store) indexPath(id ID) string {
	return filepath.Join(s.dir, indexDirName, id.String()+".idx")
}

func (s *Store) openArchive(ctx context.Context, id ID) (*Archive, error) {
	f, err := fs.Open(s.carPath(id))
	if err != nil {
		return nil, errors.Wrap(err, "open archive file")
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat archive file")
	}

	idx, err := index.OpenFile(s.indexPath(id))
	if err != nil {
		log.Warnf("index for archive %v unusable (%v), rebuilding", id.Str(), err)
		idx, err = s.rebuildIndex(ctx, id, f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &Archive{
		ID:    id,
		Size:  fi.Size(),
		f:     f,
		idx:   idx,
		added: fi.ModTime(),
	}, nil
}

// rebuildIndex re-scans the archive and writes a fresh index, replacing
// whatever was (or was not) on disk.
func (s *Store) rebuildIndex(ctx context.Context, id ID, f *os.File) (*index.Reader, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "rewind archive")
	}
	defer func() {
		_, _ = f.Seek(0, 0)
	}()

	sc, err := car.NewScanner(f)
	if err != nil {
		return nil, errors.Wrapf(err, "scan archive %v", id.Str())
	}

	b := index.NewBuilder(0, index.KeepFirst)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sec, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "scan archive %v", id.Str())
		}
		if err := b.Add(sec.CID, sec.Offset); err != nil {
			return nil, err
		}
	}

	if err := s.writeIndex(id, b.Finish()); err != nil {
		return nil, err
	}
	return index.OpenFile(s.indexPath(id))
}

// writeIndex persists the table under tmp/ and publishes it by rename.
func (s *Store) writeIndex(id ID, tbl *index.Table) error {
	f, err := fs.TempFile(filepath.Join(s.dir, tmpDirName), "index-")
	if err != nil {
		return errors.Wrap(err, "create index tempfile")
	}

	if _, err := index.WriteTable(f, tbl); err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return errors.Wrap(err, "sync index")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close index")
	}

	if err := fs.Chmod(f.Name(), 0444); err != nil {
		return errors.Wrap(err, "chmod index")
	}
	return fs.PublishFile(f.Name(), s.indexPath(id))
}

// Get returns the frame stored under c, searching archives newest first. A
// digest hit is trusted per the index contract; byte-level verification is
// the verify command's job.
func (s *Store) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, a := range s.archives {
		off, ok := a.idx.Lookup(c)
		if !ok {
			continue
		}
		_, data, err := car.ReadSection(a.f, off)
		if err != nil {
			return nil, errors.Wrapf(err, "archive %v", a.ID.Str())
		}
		return data, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "cid %v", c)
}

// Has reports whether any archive indexes c.
func (s *Store) Has(c cid.Cid) bool {
	for _, a := range s.archives {
		if _, ok := a.idx.Lookup(c); ok {
			return true
		}
	}
	return false
}

// Archives returns the open archives, newest first.
func (s *Store) Archives() []*Archive {
	return s.archives
}

// Meta returns the store metadata.
func (s *Store) Meta() Meta { return s.meta }

// Dir returns the store root directory.
func (s *Store) Dir() string { return s.dir }

// AuthKey reads the token secret created at Init.
func (s *Store) AuthKey() ([]byte, error) {
	key, err := os.ReadFile(filepath.Join(s.dir, authKeyName))
	if err != nil {
		return nil, errors.Wrap(err, "read token secret")
	}
	return key, nil
}

// Close releases all archives and the store lock.
func (s *Store) Close() error {
	var firstErr error
	for _, a := range s.archives {
		if err := a.idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := a.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.archives = nil

	if err := s.lock.release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
