// Package localfile implements the local key-value port on plain files,
// one file per key, with atomic replace-on-write.
package localfile

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/grocerygo/syncstore/internal/kv"
)

// Store persists each key as <dir>/<key>.json.
type Store struct {
	dir string
}

var _ kv.Store = (*Store)(nil)

// New creates dir if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Get returns the last value written for key, or kv.ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}

// Put replaces the value for key. The write goes to a temp file first so
// a crash never leaves a truncated blob behind.
func (s *Store) Put(key string, value []byte) error {
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "replace %s", key)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
