package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/and161185/clinical-insight/internal/model"
)

const objectPrefix = "case-files"

// MinIOConfig describes an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps uploads in an S3-compatible bucket. FileMeta.FilePath is
// the object key.
type MinIOStore struct {
	client   *minio.Client
	bucket   string
	maxBytes int64
	now      func() time.Time
}

var _ Store = (*MinIOStore)(nil)

// NewMinIOStore connects and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig, maxBytes int64) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket, maxBytes: maxBytes, now: time.Now}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Save uploads the file under case-files/<uuid><ext>.
func (s *MinIOStore) Save(ctx context.Context, originalName, mimeType string, r io.Reader) (model.FileMeta, error) {
	data, err := readLimited(r, s.maxBytes)
	if err != nil {
		return model.FileMeta{}, err
	}
	name, err := savedName(originalName)
	if err != nil {
		return model.FileMeta{}, err
	}
	ct := detectMIME(mimeType, originalName, head(data))
	key := objectPrefix + "/" + name
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return model.FileMeta{
		ID:           strings.TrimSuffix(name, filepath.Ext(name)),
		OriginalName: originalName,
		SavedName:    name,
		FilePath:     key,
		FileSize:     int64(len(data)),
		MimeType:     ct,
		UploadedAt:   s.now().UTC(),
	}, nil
}

// Open streams the object at key.
func (s *MinIOStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, notFound(err)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

// Delete removes the object at key. Removing a missing key is not an error.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
