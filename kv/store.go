// Package kv provides the mutable-pointer substrate: a key-value layer
// whose only write primitive is an atomic compare-and-swap.
//
// The tip registry and the index pointer are the only mutable state in
// the system, and both go through this interface. Everything else is
// immutable content-addressed data.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// ErrUnavailable indicates the substrate could not serve the request.
var ErrUnavailable = errors.New("kv: unavailable")

// CASError reports a failed compare-and-swap. Actual carries the value
// that actually held the slot so the caller can rebase and retry.
type CASError struct {
	Key      string
	Expected string // "" means the caller asserted absence
	Actual   string // "" means the key did not exist
}

func (e *CASError) Error() string {
	return fmt.Sprintf("kv: compare-and-swap failed for %s (expected %q, actual %q)",
		e.Key, e.Expected, e.Actual)
}

// Store is an atomic compare-and-swap key-value store.
//
// Keys arrive pre-sharded (e.g. "tip/0/1/<pi>") so implementations can
// map them directly to directories or partition keys without unbounded
// fan-out.
type Store interface {
	// Get returns the current value. ErrNotFound if the key has never
	// been written.
	Get(ctx context.Context, key string) (string, error)

	// CompareAndSwap atomically sets key to next if its current value
	// equals expected. expected == "" asserts the key does not exist
	// (creation). On mismatch it returns a *CASError carrying the
	// actual current value. next must be non-empty.
	CompareAndSwap(ctx context.Context, key, expected, next string) error
}
