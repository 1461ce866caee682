// Package storage provides the blob store the file catalog points into.
// Keys are opaque strings generated by the upload path; the store never
// interprets them.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrKeyNotFound indicates the requested key does not exist in the store.
var ErrKeyNotFound = errors.New("storage: key not found")

// BlobStore stores opaque byte payloads under opaque keys.
type BlobStore interface {
	// Put stores the payload read from body under key, replacing any
	// previous payload.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get returns a reader over the payload stored under key. The caller
	// must close the reader. Returns ErrKeyNotFound for missing keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the payload stored under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error
}
