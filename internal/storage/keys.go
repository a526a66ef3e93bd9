package storage

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	UploadPrefix    = "uploads"
	OptimizedPrefix = "optimized"
	FinalPrefix     = "final"

	maxFileNameLength = 128
	fallbackFileName  = "photo.jpg"
)

// ErrInvalidKey is returned for keys that do not follow the upload layout.
var ErrInvalidKey = errors.New("storage: key does not follow uploads/{userId}/{jobId}/{timestamp}-{fileName}")

// SanitizeFileName folds accents, replaces anything outside [A-Za-z0-9._-]
// with '-' and bounds the length.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}

	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-.")
	if len(out) > maxFileNameLength {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = strings.TrimRight(out[:maxFileNameLength-len(ext)], "-.") + ext
	}
	if out == "" || strings.HasPrefix(out, ".") {
		return fallbackFileName
	}
	return out
}

// UploadKey is the key the client uploads the original photo to.
func UploadKey(userID, jobID, fileName string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%d-%s", UploadPrefix, userID, jobID, at.Unix(), SanitizeFileName(fileName))
}

// OptimizedKey is the key of the intermediate re-encoded JPEG.
func OptimizedKey(userID, jobID, fileName string) string {
	name := SanitizeFileName(fileName)
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		stem = "photo"
	}
	return fmt.Sprintf("%s/%s/%s/%s.jpg", OptimizedPrefix, userID, jobID, stem)
}

// FinalKey is the key of the finished artifact.
func FinalKey(userID, jobID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s/%s", FinalPrefix, userID, jobID, SanitizeFileName(fileName))
}

// UploadRef is the parsed form of an upload key.
type UploadRef struct {
	UserID     string
	JobID      string
	UploadedAt time.Time
	FileName   string
}

// ParseUploadKey splits uploads/{userId}/{jobId}/{timestamp}-{fileName}.
// A missing timestamp prefix is tolerated and leaves UploadedAt zero.
func ParseUploadKey(key string) (UploadRef, error) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) != 4 || parts[0] != UploadPrefix || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return UploadRef{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ref := UploadRef{UserID: parts[1], JobID: parts[2], FileName: parts[3]}
	if ts, name, ok := strings.Cut(parts[3], "-"); ok && name != "" {
		if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
			ref.UploadedAt = time.Unix(secs, 0).UTC()
			ref.FileName = name
		}
	}
	return ref, nil
}
