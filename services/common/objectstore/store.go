// services/common/objectstore/store.go

// Package objectstore writes and reads opaque blobs at caller-supplied keys.
package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/zeebo/errs"
)

var (
	// ErrNotFound is returned when the key, or the bucket holding it, is absent.
	ErrNotFound = errs.Class("object not found")
	// ErrUnavailable is returned when the backend cannot be reached or refuses the call.
	ErrUnavailable = errs.Class("object store unavailable")
	// ErrUnsupported is returned by backends lacking an optional capability.
	ErrUnsupported = errs.Class("object store unsupported")
)

// ObjectInfo is the live state of one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is implemented by every blob backend.
type Store interface {
	// Put writes size bytes from r at key, replacing any previous object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Stat reports whether key exists along with its size and modification time.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Get opens key for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// SignedURL returns a time-limited GET URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// ClampTTL bounds a requested signed URL lifetime to [min, max].
func ClampTTL(requested, min, max time.Duration) time.Duration {
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}
