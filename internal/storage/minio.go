package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// MinioOptions configures a MinIO backed store for local development.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// SSE enables SSE-S3; the server needs a KMS configured.
	SSE bool
}

// MinioStore stores objects in a MinIO bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	sse    encrypt.ServerSide
}

// NewMinioStore connects to MinIO and creates the bucket when missing.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", opts.Bucket, err)
		}
	}
	store := &MinioStore{client: client, bucket: opts.Bucket}
	if opts.SSE {
		store.sse = encrypt.NewSSE()
	}
	return store, nil
}

func (s *MinioStore) Bucket() string { return s.bucket }

func (s *MinioStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError("get", key, err)
	}
	defer obj.Close()
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, minioError("get", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		return nil, minioError("stat", key, err)
	}
	return &Object{Body: body, ContentType: info.ContentType, Metadata: info.UserMetadata}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:          opts.ContentType,
		UserMetadata:         opts.Metadata,
		ServerSideEncryption: s.sse,
	})
	if err != nil {
		return minioError("put", key, err)
	}
	return nil
}

func (s *MinioStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey, Encryption: s.sse},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return minioError("copy", srcKey, err)
	}
	return nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return minioError("delete", key, err)
	}
	return nil
}

func (s *MinioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", minioError("presign get", key, err)
	}
	return u.String(), nil
}

func (s *MinioStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", minioError("presign put", key, err)
	}
	return u.String(), nil
}

func minioError(op, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return fmt.Errorf("storage: %s %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, key, err)
}

var _ ObjectStore = (*MinioStore)(nil)
