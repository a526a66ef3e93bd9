package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is a fetched object with its metadata.
type Object struct {
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// PutOptions controls how an object is written. Every driver encrypts at
// rest where the backend supports it.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the object storage contract shared by the S3, MinIO and
// filesystem drivers.
type ObjectStore interface {
	Bucket() string
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
