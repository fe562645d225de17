// Package file implements blobstore.Store on top of a local directory,
// one file per key. Writes go through a temp file + rename so a crash
// mid-write never leaves a truncated blob behind.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tradewire/offcache/blobstore"
)

type Store struct {
	dir string
}

var _ blobstore.Store = (*Store)(nil)

// New creates the directory if needed and returns a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Save(_ context.Context, key string, blob []byte) error {
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file store: commit %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file store: read %s: %w", key, err)
	}
	return b, true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) Close(_ context.Context) error { return nil }

// path maps a logical key to a filename. Keys are used verbatim when they
// are already filesystem-safe; anything else collapses to a digest.
func (s *Store) path(key string) string {
	if safeName(key) {
		return filepath.Join(s.dir, key+".bin")
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:12])+".bin")
}

func safeName(key string) bool {
	if key == "" || len(key) > 100 {
		return false
	}
	return !strings.ContainsAny(key, "/\\:*?\"<>| \t\n")
}
