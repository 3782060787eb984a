// Package photostore keeps uploaded photo evidence on an afero filesystem.
// Paths are relative to the filesystem root and never escape it.
package photostore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"qc-standards/internal/models"
)

// ErrTooLarge wraps models.ErrValidation so callers that only know the
// general taxonomy still treat it as bad input.
var ErrTooLarge = fmt.Errorf("%w: file too large", models.ErrValidation)

type Store struct {
	fs      afero.Fs
	allowed map[string]bool
	maxSize int64
}

func New(fs afero.Fs, allowedExt []string, maxSize int64) *Store {
	allowed := make(map[string]bool, len(allowedExt))
	for _, ext := range allowedExt {
		allowed[strings.ToLower(ext)] = true
	}
	return &Store{fs: fs, allowed: allowed, maxSize: maxSize}
}

// Validate checks the extension against the allow-list and size against the
// limit. It returns the normalized extension.
func (s *Store) Validate(filename string, size int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !s.allowed[ext] {
		return "", fmt.Errorf("%w: file extension %q not allowed", models.ErrValidation, ext)
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}
	return ext, nil
}

func (s *Store) MaxSize() int64 { return s.maxSize }

func clean(rel string) (string, error) {
	p := path.Clean("/" + filepath.ToSlash(rel))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("%w: empty path", models.ErrValidation)
	}
	return p, nil
}

// Save writes r to rel, creating parent directories. A body exceeding the
// size limit is removed again and reported as ErrTooLarge.
func (s *Store) Save(rel string, r io.Reader) (int64, error) {
	p, err := clean(rel)
	if err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("create photo dir: %w", err)
	}
	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create photo: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = s.fs.Remove(p)
		return 0, fmt.Errorf("write photo: %w", copyErr)
	case closeErr != nil:
		_ = s.fs.Remove(p)
		return 0, fmt.Errorf("close photo: %w", closeErr)
	case s.maxSize > 0 && n > s.maxSize:
		_ = s.fs.Remove(p)
		return 0, ErrTooLarge
	}
	return n, nil
}

func (s *Store) Open(rel string) (afero.File, error) {
	p, err := clean(rel)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: file %s", models.ErrNotFound, p)
		}
		return nil, err
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: file %s", models.ErrNotFound, p)
	}
	return f, nil
}

// Remove deletes rel; a missing file is not an error.
func (s *Store) Remove(rel string) error {
	p, err := clean(rel)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Exists(rel string) bool {
	p, err := clean(rel)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(s.fs, p)
	return ok
}
