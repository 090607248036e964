// Package storage persists uploaded case files and signs download links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = fmt.Errorf("%w: file too large", errs.ErrValidation)

// Store saves and reads back uploaded files.
type Store interface {
	// Save stores the content of r under a generated name.
	Save(ctx context.Context, originalName, mimeType string, r io.Reader) (model.FileMeta, error)
	// Open returns the content stored at path (FileMeta.FilePath).
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the content stored at path.
	Delete(ctx context.Context, path string) error
}

// savedName builds "<uuid><ext>" keeping the original extension.
func savedName(originalName string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return id.String() + ext, nil
}

// detectMIME prefers the declared type, then the extension, then content sniffing.
func detectMIME(declared, originalName string, head []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(originalName))); t != "" {
		return t
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}

// readLimited reads r fully, failing with ErrTooLarge past max bytes.
// max <= 0 disables the limit.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, ErrTooLarge
	}
	return b, nil
}

// ReadAll loads a stored file into memory.
func ReadAll(ctx context.Context, s Store, path string) ([]byte, error) {
	rc, err := s.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Loader reads whole files by their metadata.
type Loader struct{ Store Store }

// Load returns the content of f.
func (l Loader) Load(ctx context.Context, f model.FileMeta) ([]byte, error) {
	return ReadAll(ctx, l.Store, f.FilePath)
}

func notFound(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errs.ErrFileNotFound, err)
}
