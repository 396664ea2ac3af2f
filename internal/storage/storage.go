// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the file access used by the boot pipeline.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// ErrReadOnly is returned by writes to read-only storage.
var ErrReadOnly = errors.New("storage is read-only")

// Storage is the boot media: SD card or NAND partition.
type Storage interface {
	// ReadFile returns up to max bytes from the start of the file at p.
	ReadFile(p string, max int) ([]byte, error)
	// WriteFile replaces the file at p with data.
	WriteFile(p string, data []byte) error
	// Exists returns true if there is a file at p.
	Exists(p string) bool
}

// FS is Storage backed by an afero filesystem.
type FS struct {
	fs afero.Fs
}

var _ Storage = &FS{}

// NewFS returns Storage on top of fs.
func NewFS(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewDir returns Storage rooted at the given host directory.
func NewDir(dir string) (*FS, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to stat storage dir %q: %w", dir, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("storage %q is not a directory", dir)
	}
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// ReadFile implements Storage.
func (s *FS) ReadFile(p string, max int) ([]byte, error) {
	f, err := s.fs.Open(clean(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, int64(max)))
}

// WriteFile implements Storage.
func (s *FS) WriteFile(p string, data []byte) error {
	p = clean(p)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %q: %w", p, err)
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

// Exists implements Storage.
func (s *FS) Exists(p string) bool {
	ok, err := afero.Exists(s.fs, clean(p))
	return err == nil && ok
}

func clean(p string) string {
	return path.Clean("/" + p)
}
