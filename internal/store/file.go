package store

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

/*
Package store provides durable slots for the serialized classification cache.

Every backend holds exactly one blob under the cache's storage key. The file backend is the
default for the CLI; the memory backend keeps nothing across restarts. The file and Redis
backends implement cache.Updater, so several processes (an API server and CI scans, for
example) can share one blob: each persist merges with what is stored instead of
overwriting it.
*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/metrics"
)

const backendFile = "file"

// FileStore keeps the cache in <dir>/greenDomainCache.json.
type FileStore struct {
	dir  string
	path string
}

// NewFileStore returns a store rooted at dir. The directory is created on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:  dir,
		path: filepath.Join(dir, cache.StorageKey+".json"),
	}
}

// DefaultDir returns the per-user cache directory for greenlink.
func DefaultDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "greenlink")
	}
	return filepath.Join(os.TempDir(), "greenlink")
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Load reads the blob. A missing file yields nil, nil.
func (s *FileStore) Load(_ context.Context) (data []byte, err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendFile, "load", started, err) }()

	unlock, err := s.lock(false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err = os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

// Save replaces the blob atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, data []byte) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendFile, "save", started, err) }()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", s.dir, err)
	}
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	return s.replace(data)
}

// Update reads the blob and writes fn's replacement while holding the exclusive lock.
func (s *FileStore) Update(_ context.Context, fn func(current []byte) ([]byte, error)) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendFile, "update", started, err) }()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", s.dir, err)
	}
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	data, err := fn(current)
	if err != nil {
		return err
	}
	return s.replace(data)
}

// replace writes data to a temp file and renames it over the blob. The caller holds
// the exclusive lock.
func (s *FileStore) replace(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, cache.StorageKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", s.dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, s.path, err)
	}
	return nil
}

// Clear removes the blob. Removing a missing file is not an error.
func (s *FileStore) Clear(_ context.Context) (err error) {
	started := time.Now()
	defer func() { metrics.GetMetrics().RecordStoreOp(backendFile, "clear", started, err) }()

	if _, statErr := os.Stat(s.dir); errors.Is(statErr, os.ErrNotExist) {
		return nil
	}
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

// lock takes an advisory lock on a sibling .lock file. Load only locks when the
// directory already exists so reads never create it.
func (s *FileStore) lock(exclusive bool) (func(), error) {
	if _, err := os.Stat(s.dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return func() {}, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", s.dir, err)
	}
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f, exclusive); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", f.Name(), err)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
