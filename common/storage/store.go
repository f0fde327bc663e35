package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist in the store
var ErrNotFound = errors.New("object not found")

// ObjectRef identifies an object within a bucket
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// ObjectInfo holds metadata for a stored object
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ObjectStore is the object storage capability consumed by orchestration
// and projection services
type ObjectStore interface {
	Get(ctx context.Context, ref ObjectRef) (io.ReadCloser, error)
	Put(ctx context.Context, ref ObjectRef, body io.Reader, contentType string) error
	Copy(ctx context.Context, src, dst ObjectRef) error
	Delete(ctx context.Context, bucket string, keys ...string) error
	Stat(ctx context.Context, ref ObjectRef) (*ObjectInfo, error)
}

// ParseURI parses an s3://bucket/key style URI into an ObjectRef
func ParseURI(uri string) (ObjectRef, error) {
	trimmed, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return ObjectRef{}, fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("malformed s3 uri: %q", uri)
	}
	return ObjectRef{Bucket: bucket, Key: key}, nil
}
