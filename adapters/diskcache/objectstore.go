package diskcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/Skryldev/imagefetch/core"
	apperrors "github.com/Skryldev/imagefetch/errors"
)

// ObjectClient is the minimal S3-style interface the object store cache
// needs.  Inject a wrapper around aws-sdk-go-v2, MinIO or a test double.
// GetObject must return found=false, not an error, for a missing object.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, found bool, err error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// ObjectStore is a DiskCache backed by an object store bucket.  Client
// errors are reported as transient storage failures.
type ObjectStore struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewObjectStore creates an object-store cache.  client must not be nil.
func NewObjectStore(client ObjectClient, bucket, prefix string) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("object store cache: client must not be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("object store cache: bucket must not be empty")
	}
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *ObjectStore) objectKey(key string) string {
	name := entryName(key)
	return path.Join(s.prefix, name[:2], name)
}

func (s *ObjectStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, apperrors.Wrap(apperrors.CategoryStorage, "objectstore.read", err)
	}
	body, found, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key))
	if err != nil {
		return nil, false, apperrors.Transient("objectstore.read", err)
	}
	if !found {
		return nil, false, nil
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, apperrors.Transient("objectstore.read.body", err)
	}
	return data, true, nil
}

func (s *ObjectStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "objectstore.write", err)
	}
	if err := s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(data), int64(len(data))); err != nil {
		return apperrors.Transient("objectstore.write", err)
	}
	return nil
}

func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "objectstore.remove", err)
	}
	if err := s.client.DeleteObject(ctx, s.bucket, s.objectKey(key)); err != nil {
		return apperrors.Transient("objectstore.remove", err)
	}
	return nil
}

var _ core.DiskCache = (*ObjectStore)(nil)
