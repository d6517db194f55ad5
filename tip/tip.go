// Package tip maintains the mutable pointer from each entity to the
// CID of its current manifest.
//
// The compare-and-swap here is the sole admission point for version
// appends: when two writers race on the same entity, exactly one CAS
// advances the tip and the loser gets the actual tip back so it can
// rebase. No other locking exists on the write path.
package tip

import (
	"context"
	"errors"
	"fmt"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/kv"
	"github.com/Arke-Institute/arke/pi"
)

// ErrNotFound is returned when an entity has no tip record.
var ErrNotFound = errors.New("tip: entity not found")

// CASError reports a lost tip race. Actual is the tip the winner
// installed; a caller that still wants to write must recompute its
// update against it and resubmit.
type CASError struct {
	PI       pi.PI
	Expected cid.CID // "" for a creation attempt
	Actual   cid.CID
}

func (e *CASError) Error() string {
	return fmt.Sprintf("tip: compare-and-swap failed for %s (expected %q, actual %q)",
		e.PI, e.Expected, e.Actual)
}

// Registry maps entity identifiers to their current manifest CID.
// Tip records are created on first write and never deleted.
type Registry struct {
	kv kv.Store
}

// NewRegistry creates a tip registry over the given CAS substrate.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{kv: store}
}

func key(p pi.PI) string {
	return "tip/" + p.Shard() + "/" + string(p)
}

// Resolve returns the current tip CID for p.
func (r *Registry) Resolve(ctx context.Context, p pi.PI) (cid.CID, error) {
	v, err := r.kv.Get(ctx, key(p))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("tip: resolve %s: %w", p, err)
	}
	return cid.CID(v), nil
}

// CompareAndSwap advances the tip for p from expected to next.
// expected == "" asserts the entity does not exist yet (creation).
func (r *Registry) CompareAndSwap(ctx context.Context, p pi.PI, expected, next cid.CID) error {
	err := r.kv.CompareAndSwap(ctx, key(p), string(expected), string(next))
	if err == nil {
		return nil
	}
	var casErr *kv.CASError
	if errors.As(err, &casErr) {
		return &CASError{PI: p, Expected: expected, Actual: cid.CID(casErr.Actual)}
	}
	return fmt.Errorf("tip: swap %s: %w", p, err)
}
