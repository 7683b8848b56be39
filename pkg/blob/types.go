// Package blob stores opaque archives under slash-separated keys.
package blob

import (
	"context"
	"io"
)

type BlobStore interface {
	// Put writes content under key, replacing any previous blob.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the blob under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys below prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
}
