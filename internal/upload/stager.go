// Package upload stages uploaded files on local disk for the duration of one
// ingestion run.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

// Stager writes uploads into a dedicated directory with a size ceiling.
// It is the only owner of that directory; callers never pick file names.
type Stager struct {
	dir      string
	maxBytes int64
}

// NewStager creates dir if needed and returns a Stager writing into it.
func NewStager(dir string, maxBytes int64) (*Stager, error) {
	if maxBytes < 1 {
		return nil, errors.New("upload: max bytes must be >= 1")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("upload: create dir %s: %w", dir, err)
	}
	return &Stager{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Stage copies body into a new file named after a random id plus ext.
// Bodies larger than the configured ceiling are rejected with ErrValidation
// and leave nothing behind.
func (s *Stager) Stage(originalName, ext string, body io.Reader) (*File, error) {
	path := filepath.Join(s.dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: path built from uuid
	if err != nil {
		return nil, fmt.Errorf("upload: create %s: %w", path, err)
	}

	n, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("upload: write %s: %w", path, err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return nil, fmt.Errorf("file exceeds %d bytes: %w", s.maxBytes, domain.ErrValidation)
	}

	return &File{Path: path, Name: originalName, Size: n}, nil
}

// File is a staged upload. Release must be called once the file is no longer needed.
type File struct {
	Path string
	Name string
	Size int64

	once sync.Once
	err  error
}

// Open opens the staged file for reading.
func (f *File) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Release deletes the staged file. It is safe to call more than once.
func (f *File) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("upload: remove %s: %w", f.Path, err)
		}
	})
	return f.err
}
