// Package blob stores raw file bytes under a single fixed root directory.
// All paths are resolved relative to that root; anything that would land
// outside it is rejected before touching the filesystem.
package blob

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrPathEscape is returned for paths that resolve outside the root.
var ErrPathEscape = errors.New("path escapes blob root")

type Store struct {
	root string
	fs   afero.Fs
}

// New creates a store rooted at dir on the real filesystem.
func New(dir string) *Store {
	return NewWithFs(dir, afero.NewOsFs())
}

// NewWithFs creates a store over an arbitrary afero backend.
func NewWithFs(dir string, backend afero.Fs) *Store {
	return &Store{root: filepath.Clean(dir), fs: backend}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Write creates parent directories as needed and writes the full blob,
// overwriting any existing content.
func (s *Store) Write(rel string, data []byte) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0o600)
}

// Read returns the full blob contents.
func (s *Store) Read(rel string) ([]byte, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, p)
}

// Open returns the blob's size on disk and a single-pass byte stream.
// The caller closes the stream.
func (s *Store) Open(rel string) (int64, io.ReadCloser, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return 0, nil, err
	}
	st, err := s.fs.Stat(p)
	if err != nil {
		return 0, nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return 0, nil, err
	}
	return st.Size(), f, nil
}

// Rename moves a blob to a new path under the root, creating parent
// directories for the destination as needed.
func (s *Store) Rename(oldRel, newRel string) error {
	oldP, err := s.resolve(oldRel)
	if err != nil {
		return err
	}
	newP, err := s.resolve(newRel)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(newP), 0o700); err != nil {
		return err
	}
	return s.fs.Rename(oldP, newP)
}

// Remove deletes the blob if present; a missing blob is a no-op.
func (s *Store) Remove(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	err = s.fs.Remove(p)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RemoveBatch deletes a set of blobs, tolerating already-missing files.
func (s *Store) RemoveBatch(rels []string) error {
	for _, rel := range rels {
		if err := s.Remove(rel); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDir removes an expected-empty directory under the root.
// A missing directory is a no-op; a non-empty one fails.
func (s *Store) RemoveDir(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	err = s.fs.Remove(p)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// resolve maps a storage-relative path to a local path under the root.
// Leading slashes are stripped so URL-derived paths are always treated
// as relative.
func (s *Store) resolve(rel string) (string, error) {
	trimmed := strings.TrimLeft(rel, "/\\")
	if trimmed == "" {
		return "", ErrPathEscape
	}
	joined := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(trimmed)))
	if !within(s.root, joined) {
		return "", ErrPathEscape
	}
	return joined, nil
}

func within(root, candidate string) bool {
	root = filepath.Clean(root)
	if root == candidate {
		return false
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}
