package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/and161185/clinical-insight/internal/model"
)

// LocalStore writes files into a directory on local disk.
type LocalStore struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local storage: empty directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save writes the upload to <dir>/<uuid><ext>.
func (s *LocalStore) Save(_ context.Context, originalName, mimeType string, r io.Reader) (model.FileMeta, error) {
	data, err := readLimited(r, s.maxBytes)
	if err != nil {
		return model.FileMeta{}, err
	}
	name, err := savedName(originalName)
	if err != nil {
		return model.FileMeta{}, err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return model.FileMeta{}, fmt.Errorf("write %s: %w", name, err)
	}
	return model.FileMeta{
		ID:           strings.TrimSuffix(name, filepath.Ext(name)),
		OriginalName: originalName,
		SavedName:    name,
		FilePath:     path,
		FileSize:     int64(len(data)),
		MimeType:     detectMIME(mimeType, originalName, head(data)),
		UploadedAt:   s.now().UTC(),
	}, nil
}

// Open reads a file previously written by Save. Paths outside the store
// directory are rejected.
func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(err)
	}
	return f, err
}

// Delete removes a file previously written by Save.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(err)
	}
	return err
}

func (s *LocalStore) resolve(path string) (string, error) {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", notFound(fmt.Errorf("path %q outside storage", path))
	}
	return filepath.Join(s.dir, rel), nil
}

func head(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return bytes.Clone(b)
}
