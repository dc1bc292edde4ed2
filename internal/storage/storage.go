package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/rs/xid"
	cfg "github.com/templui/pixelplan/internal/config"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidPath    = errors.New("invalid storage path")
)

// Storage holds originals and thumbnails under slash-separated keys.
type Storage interface {
	// Save stores the reader's bytes at the given path
	Save(ctx context.Context, path string, r io.Reader) error

	// Open returns the bytes stored at path or ErrObjectNotFound
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object; deleting a missing object is not an error
	Delete(ctx context.Context, path string) error

	// UniqueName derives a fresh key from base and suffix
	UniqueName(base, suffix string) string
}

// New selects the storage backend configured by STORAGE_DRIVER.
func New(ctx context.Context, c *cfg.Config) (Storage, error) {
	switch c.StorageDriver {
	case "s3":
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(ctx, S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
		})
	case "local", "":
		slog.Info("initializing local storage", "path", c.StoragePath)
		return NewLocalStorage(c.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
}

// UniqueName inserts the suffix and a globally unique xid before the extension,
// so "images/cat.jpg" with suffix "200x200" becomes "images/cat_200x200_<xid>.jpg".
// Concurrent callers never receive the same name.
func UniqueName(base, suffix string) string {
	base = strings.TrimPrefix(path.Clean("/"+base), "/")
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := stem
	if suffix != "" {
		name += "_" + suffix
	}
	return name + "_" + xid.New().String() + ext
}

// cleanKey normalizes a key and rejects anything escaping the storage root.
func cleanKey(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
