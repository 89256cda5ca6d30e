// Package rawstore keeps harvested player payloads as one file per candidate
// ID. It is the only thing the harvester and the flattener share.
package rawstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Store is a directory of raw payload files named after their player ID.
type Store struct {
	dir string
}

// Entry is one raw file in the store.
type Entry struct {
	Name string
	Path string
}

// New returns a store rooted at dir. The directory is created on first
// write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for a player ID.
func (s *Store) Path(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id))
}

// Write stores body verbatim under the player ID, replacing any previous
// payload.
func (s *Store) Write(id int, body []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	if err := os.WriteFile(s.Path(id), body, 0o644); err != nil {
		return fmt.Errorf("write player %d: %w", id, err)
	}
	return nil
}

// Exists reports whether a payload for the player ID is already stored.
func (s *Store) Exists(id int) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// List returns the regular files in directory listing order, keeping only
// the first limit entries when limit > 0. A missing directory is an empty
// store.
func (s *Store) List(limit int) ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list raw dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		entries = append(entries, Entry{Name: d.Name(), Path: filepath.Join(s.dir, d.Name())})
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}
