package store

import (
	"bytes"
	"context"
	"io"

	"github.com/ipfs/go-cid"
	sha256 "github.com/minio/sha256-simd"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/taigachain/taiga/internal/car"
)

const blake2b256Code = multihash.BLAKE2B_MIN + 31

// verifyFrame recomputes the multihash of data and compares it against the
// digest inside c. Hash functions other than sha2-256 and blake2b-256 are
// not recomputed; those frames pass with a debug note.
func verifyFrame(c cid.Cid, data []byte) error {
	dm, err := multihash.Decode(c.Hash())
	if err != nil {
		return errors.Wrapf(err, "decode multihash of %v", c)
	}

	var sum [32]byte
	switch dm.Code {
	case multihash.SHA2_256:
		sum = sha256.Sum256(data)
	case blake2b256Code:
		sum = blake2b.Sum256(data)
	default:
		log.Debugf("cannot verify %v: unsupported hash function %#x", c, dm.Code)
		return nil
	}

	if !bytes.Equal(sum[:], dm.Digest) {
		return errors.Errorf("frame data does not match cid %v", c)
	}
	return nil
}

// VerifyArchive re-scans the archive front to back, checking that every
// section is indexed at its actual offset and that the frame bytes match
// their CID where the hash function is supported.
func (s *Store) VerifyArchive(ctx context.Context, id ID, jobs int) error {
	if jobs <= 0 {
		jobs = 2
	}

	var archive *Archive
	for _, a := range s.archives {
		if a.ID == id {
			archive = a
			break
		}
	}
	if archive == nil {
		return errors.Errorf("no archive %v in store", id.Str())
	}

	if _, err := archive.f.Seek(0, 0); err != nil {
		return errors.Wrap(err, "rewind archive")
	}
	defer func() {
		_, _ = archive.f.Seek(0, 0)
	}()

	// The container is named by the hash of its bytes; recompute it first so
	// a swapped or spliced archive file fails before any section passes.
	actual, err := HashReader(archive.f)
	if err != nil {
		return errors.Wrap(err, "hash archive")
	}
	if actual != archive.ID {
		return errors.Errorf("archive file hashes to %v, expected %v", actual.Str(), archive.ID.Str())
	}
	if _, err := archive.f.Seek(0, 0); err != nil {
		return errors.Wrap(err, "rewind archive")
	}

	sc, err := car.NewScanner(archive.f)
	if err != nil {
		return err
	}

	wg, wgCtx := errgroup.WithContext(ctx)
	checks := make(chan *car.Section, jobs)
	for i := 0; i < jobs; i++ {
		wg.Go(func() error {
			for sec := range checks {
				if err := verifyFrame(sec.CID, sec.Data); err != nil {
					return err
				}
			}
			return nil
		})
	}

	var sections uint64
	scanErr := func() error {
		for {
			sec, err := sc.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			sections++

			off, ok := archive.idx.Lookup(sec.CID)
			if !ok {
				return errors.Errorf("section %v at offset %d is not indexed", sec.CID, sec.Offset)
			}
			// Duplicate sections resolve to the first occurrence.
			if off != sec.Offset {
				if c, _, err := car.ReadSection(archive.f, off); err != nil || !c.Equals(sec.CID) {
					return errors.Errorf("index points %v at offset %d, expected %d", sec.CID, off, sec.Offset)
				}
			}

			select {
			case checks <- sec:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}
		}
	}()
	close(checks)
	if werr := wg.Wait(); werr != nil {
		scanErr = werr
	}
	if scanErr != nil {
		return errors.Wrapf(scanErr, "verify archive %v", id.Str())
	}

	log.Infof("archive %v verified: %d sections", id.Str(), sections)
	return nil
}
