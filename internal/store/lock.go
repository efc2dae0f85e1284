package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/fs"
)

const lockName = "LOCK"

// ErrStoreLocked is returned when another process holds the store lock and
// it could not be acquired within the retry window.
var ErrStoreLocked = errors.New("store is locked by another process")

type lockInfo struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	Time     time.Time `json:"time"`
}

// storeLock is an exclusive directory lock, held from Open until Close. It
// is advisory: a crashed holder leaves a stale lock file that has to be
// removed by hand.
type storeLock struct {
	path string
}

// acquireLock creates the lock file, retrying with exponential backoff while
// another process holds it. Cancelling ctx aborts the wait.
func acquireLock(ctx context.Context, dir string) (*storeLock, error) {
	path := filepath.Join(dir, lockName)

	hostname, _ := os.Hostname()
	info, err := json.Marshal(lockInfo{
		PID:      os.Getpid(),
		Hostname: hostname,
		Time:     time.Now().UTC(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}

	try := func() error {
		f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if os.IsExist(err) {
				log.Debugf("lock %v is held, retrying", path)
				return ErrStoreLocked
			}
			return backoff.Permanent(err)
		}

		_, werr := f.Write(info)
		cerr := f.Close()
		if werr != nil {
			return backoff.Permanent(werr)
		}
		return cerr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(try, backoff.WithContext(bo, ctx)); err != nil {
		return nil, errors.Wrapf(err, "lock %v", path)
	}
	return &storeLock{path: path}, nil
}

// release removes the lock file.
func (l *storeLock) release() error {
	return fs.RemoveIfExists(l.path)
}
