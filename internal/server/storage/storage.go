// Package storage abstracts the object store holding blob payloads. Keys
// are content-addressed (derived from the content hash), so repeated writes
// of the same key are idempotent and concurrent duplicate writes are
// harmless.
package storage

import (
	"context"
	"io"
)

// Store is the object-storage capability consumed by the lifecycle and
// file services. All operations are idempotent with respect to the same key.
type Store interface {
	// Put writes the payload under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get returns the payload stream or common.ErrorNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Copy duplicates an object server side from srcKey to dstKey.
	Copy(ctx context.Context, srcKey, dstKey string) error
}
