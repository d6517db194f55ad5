package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for accessing immutable data blobs.
//
// Arke writes every blob exactly once under a content-derived name and
// never mutates it, so implementations may cache reads indefinitely and
// treat a Put of an existing name as a no-op.
type Store interface {
	// Put writes a blob atomically. Writing the same name twice with
	// the same content must succeed.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a blob in full. Returns ErrNotFound if absent.
	Get(ctx context.Context, name string) ([]byte, error)

	// Has reports whether a blob exists without fetching it.
	Has(ctx context.Context, name string) (bool, error)

	// List returns all blob names with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error
}
