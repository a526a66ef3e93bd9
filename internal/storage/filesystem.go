package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const metaDir = ".meta"

var (
	// ErrSignatureInvalid is returned by Verify for tampered or expired URLs.
	ErrSignatureInvalid = errors.New("storage: signature invalid or expired")
)

// FileStore persists objects onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Presigned URLs point at the API's file routes and carry an
// HMAC-SHA256 signature.
type FileStore struct {
	basePath string
	baseURL  string
	bucket   string
	signKey  []byte
	now      func() time.Time
}

// FileStoreOptions configures NewFileStore.
type FileStoreOptions struct {
	BasePath string
	BaseURL  string
	Bucket   string
	SignKey  string
}

// NewFileStore initializes a FileStore rooted at opts.BasePath.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	basePath := strings.TrimSpace(opts.BasePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if opts.SignKey == "" {
		return nil, errors.New("storage: signing key is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = "local"
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		bucket:   bucket,
		signKey:  []byte(opts.SignKey),
		now:      time.Now,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

func (s *FileStore) Bucket() string { return s.bucket }

func (s *FileStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, cleanKey, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: get %s: %w", cleanKey, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	obj := &Object{Body: data}
	if raw, err := os.ReadFile(s.metaPath(cleanKey)); err == nil {
		var meta PutOptions
		if json.Unmarshal(raw, &meta) == nil {
			obj.ContentType = meta.ContentType
			obj.Metadata = meta.Metadata
		}
	}
	return obj, nil
}

// Put writes data at key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, cleanKey, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := writeFile(full, data); err != nil {
		return err
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("storage: encode metadata: %w", err)
	}
	return writeFile(s.metaPath(cleanKey), raw)
}

func (s *FileStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	obj, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	return s.Put(ctx, dstKey, obj.Body, PutOptions{ContentType: obj.ContentType, Metadata: obj.Metadata})
}

// Delete removes key. Deleting a missing key is not an error, matching S3.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, cleanKey, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	_ = os.Remove(s.metaPath(cleanKey))
	return nil
}

func (s *FileStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.presign("GET", key, ttl)
}

func (s *FileStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return s.presign("PUT", key, ttl)
}

// Verify checks a signature issued by PresignGet or PresignPut.
func (s *FileStore) Verify(method, key, expires, signature string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return ErrSignatureInvalid
	}
	want := s.sign(method, cleanKey, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

func (s *FileStore) presign(method, key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", s.sign(method, cleanKey, exp))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, cleanKey, q.Encode()), nil
}

func (s *FileStore) sign(method, key string, exp int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d", method, s.bucket, key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *FileStore) resolve(key string) (string, string, error) {
	if s == nil {
		return "", "", errors.New("storage: no store configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	if cleanKey == metaDir || strings.HasPrefix(cleanKey, metaDir+"/") {
		return "", "", errors.New("storage: invalid key")
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), cleanKey, nil
}

func (s *FileStore) metaPath(cleanKey string) string {
	return filepath.Join(s.basePath, metaDir, filepath.FromSlash(cleanKey)+".json")
}

func writeFile(full string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ ObjectStore = (*FileStore)(nil)
