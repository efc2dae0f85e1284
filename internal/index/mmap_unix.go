//go:build unix

package index

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// OpenFile maps the index file at path read-only and returns a Reader over
// the mapping. Probes touch scattered slots, so the mapping is advised for
// random access. Close unmaps.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open index")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat index")
	}
	if fi.Size() == 0 {
		return nil, errors.Wrap(ErrIndexTruncated, "empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap index")
	}

	// Advisory only, failure is harmless.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	r, err := Load(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	r.unmap = func() error {
		return unix.Munmap(data)
	}
	return r, nil
}
