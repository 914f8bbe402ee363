package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const partSuffix = ".part"

// ErrUnsafePath is returned for names that would escape the storage directory.
var ErrUnsafePath = errors.New("path escapes storage directory")

// FileStorage manages files below a single root directory.
// Names are slash separated and relative to the root.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: filepath.Clean(dir)}
}

// Dir returns the root directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

// Path resolves a relative name to an absolute location inside the root.
func (s *FileStorage) Path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	return filepath.Join(s.dir, local), nil
}

// Create opens a temporary file for name, creating parent directories.
// The data becomes visible under name only after Commit.
func (s *FileStorage) Create(name string) (*PartFile, error) {
	final, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(final + partSuffix)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &PartFile{File: f, final: final}, nil
}

// Size returns the size of a committed file. ok is false if it does not exist.
func (s *FileStorage) Size(name string) (size int64, ok bool) {
	p, err := s.Path(name)
	if err != nil {
		return 0, false
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// PartFile is a file being written next to its final name.
type PartFile struct {
	*os.File
	final string
}

// Commit closes the file and moves it to its final name.
func (p *PartFile) Commit() error {
	if err := p.File.Close(); err != nil {
		os.Remove(p.File.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(p.File.Name(), p.final); err != nil {
		os.Remove(p.File.Name())
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Abort closes and deletes the temporary file.
func (p *PartFile) Abort() {
	p.File.Close()
	os.Remove(p.File.Name())
}
