package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taigachain/taiga/internal/fs"
)

// Meta is the durable store metadata, saved as JSON at the store root.
type Meta struct {
	Version   uint32    `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentVersion is the store layout version written by Init. Older stores
// are brought forward by the migration package.
const CurrentVersion = uint32(2)

const metaName = "meta.json"

// NewMeta returns metadata for a freshly initialized store.
func NewMeta() Meta {
	m := Meta{
		Version:   CurrentVersion,
		ID:        NewRandomID().String(),
		CreatedAt: time.Now().UTC(),
	}
	log.Infof("new store metadata: %#v", m)
	return m
}

// ReadMeta loads the metadata file from the store directory dir.
func ReadMeta(dir string) (Meta, error) {
	b, err := os.ReadFile(filepath.Join(dir, metaName))
	if err != nil {
		return Meta{}, errors.Wrap(err, "read store metadata")
	}

	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, errors.Wrap(err, "parse store metadata")
	}
	return m, nil
}

// WriteMeta saves the metadata into dir, replacing any previous file via an
// atomic rename.
func WriteMeta(dir string, m Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}

	f, err := fs.TempFile(dir, "meta-")
	if err != nil {
		return errors.Wrap(err, "create metadata file")
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return errors.Wrap(err, "write metadata")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return errors.Wrap(err, "sync metadata")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close metadata")
	}

	return fs.PublishFile(f.Name(), filepath.Join(dir, metaName))
}
