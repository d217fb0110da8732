// Package store manages the artifact stores on the local filesystem.
//
// The staging store receives artifacts from build jobs, the release store
// holds released artifacts. Both index their content by path relative to the
// store root.
package store

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ArtifactPath is a path relative to a store root, e.g.
// "zlib-1.3.1/zlib-1.3.1.pkg.tar".
type ArtifactPath string

type Store struct {
	root string

	mu    sync.RWMutex
	index map[ArtifactPath]struct{}
}

// Load scans the store directory and indexes every file below it. The
// directory is created if it does not exist.
func Load(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", root)
	}

	s := &Store{
		root:  root,
		index: make(map[ArtifactPath]struct{}),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		s.index[ArtifactPath(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan store %s", root)
	}

	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Has(p ArtifactPath) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[p]
	return ok
}

// FullPath returns the absolute path of an artifact, whether or not it is
// indexed.
func (s *Store) FullPath(p ArtifactPath) string {
	return filepath.Join(s.root, filepath.FromSlash(string(p)))
}

// Add writes artifact content into the store and indexes it.
func (s *Store) Add(p ArtifactPath, content io.Reader) error {
	full := s.FullPath(p)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrapf(err, "failed to create artifact directory for %s", p)
	}

	f, err := os.Create(full)
	if err != nil {
		return errors.Wrapf(err, "failed to create artifact %s", p)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return errors.Wrapf(err, "failed to write artifact %s", p)
	}

	s.mu.Lock()
	s.index[p] = struct{}{}
	s.mu.Unlock()

	return nil
}

// Paths returns all indexed artifact paths, sorted.
func (s *Store) Paths() []ArtifactPath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ArtifactPath, 0, len(s.index))
	for p := range s.index {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merged is the read view over the staging and release stores. Staging wins:
// a rebuilt artifact shadows the released one with the same path.
type Merged struct {
	Staging *Store
	Release *Store
}

// Locate returns the store holding an artifact, staging preferred.
func (m Merged) Locate(p ArtifactPath) (*Store, bool) {
	if m.Staging != nil && m.Staging.Has(p) {
		return m.Staging, true
	}
	if m.Release != nil && m.Release.Has(p) {
		return m.Release, true
	}
	return nil, false
}

// InStaging reports whether the staging store holds the artifact.
func (m Merged) InStaging(p ArtifactPath) bool {
	return m.Staging != nil && m.Staging.Has(p)
}
