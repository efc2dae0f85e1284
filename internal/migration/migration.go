// Package migration brings an existing store directory forward to the
// current layout version. Migrations form an ordered chain; each step
// rewrites the metadata on success, so an aborted run leaves a consistent
// intermediate version that a later run picks up from.
package migration

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/store"
)

// Migration is one versioned layout change.
type Migration struct {
	From, To uint32
	Name     string
	Run      func(ctx context.Context, dir string) error
}

// migrations must be ordered and gapless: each entry's From equals the
// previous entry's To.
var migrations = []Migration{
	{From: 0, To: 1, Name: "split car and index directories", Run: migrateV0SplitDirs},
	{From: 1, To: 2, Name: "rebuild indexes in current layout", Run: migrateV1RebuildIndexes},
}

// Migrate applies all pending migrations to the store at dir. It is a no-op
// for a store that is already current.
func Migrate(ctx context.Context, dir string) error {
	meta, err := store.ReadMeta(dir)
	if err != nil {
		return err
	}
	if meta.Version > store.CurrentVersion {
		return errors.Errorf("store version %d is newer than this binary supports (%d)", meta.Version, store.CurrentVersion)
	}
	if meta.Version == store.CurrentVersion {
		log.Infof("store is already at version %d", meta.Version)
		return nil
	}

	for _, m := range migrations {
		if m.From < meta.Version {
			continue
		}
		if m.From != meta.Version {
			return errors.Errorf("no migration path from store version %d", meta.Version)
		}

		log.Infof("migrating store v%d -> v%d: %s", m.From, m.To, m.Name)
		if err := m.Run(ctx, dir); err != nil {
			return errors.Wrapf(err, "migration v%d -> v%d", m.From, m.To)
		}

		meta.Version = m.To
		if err := store.WriteMeta(dir, meta); err != nil {
			return err
		}
	}

	log.Infof("store migrated to version %d", meta.Version)
	return nil
}
