package manifest

import (
	"context"
	"fmt"

	"github.com/Arke-Institute/arke/cas"
	"github.com/Arke-Institute/arke/cid"
)

// Chain reads and appends per-entity version history in the content
// store.
type Chain struct {
	cas *cas.Store
}

// NewChain creates a chain over the given content store.
func NewChain(store *cas.Store) *Chain {
	return &Chain{cas: store}
}

// Append writes m and returns its content address. Appending is a pure
// function of the manifest: identical inputs produce the same CID, and
// the underlying store skips the write when the address already
// resolves. No retries happen here; backoff policy belongs to the
// caller.
func (c *Chain) Append(ctx context.Context, m *Manifest) (cid.CID, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	return c.cas.PutJSON(ctx, m)
}

// Load fetches the manifest at addr.
func (c *Chain) Load(ctx context.Context, addr cid.CID) (*Manifest, error) {
	var m Manifest
	if err := c.cas.GetJSON(ctx, addr, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: corrupt at %s: %w", addr, err)
	}
	return &m, nil
}

// Walk traverses the chain from addr back to ver=1, invoking fn for
// each manifest, newest first. fn returning false stops the walk early.
//
// The walk enforces the chain invariant as it goes: versions must
// strictly decrease by one and terminate at ver=1 with no Prev.
// Anything else means corrupted storage, not a usage error.
func (c *Chain) Walk(ctx context.Context, addr cid.CID, fn func(addr cid.CID, m *Manifest) (bool, error)) error {
	expectVer := -1
	for addr != "" {
		m, err := c.Load(ctx, addr)
		if err != nil {
			return err
		}
		if expectVer >= 0 && m.Ver != expectVer {
			return fmt.Errorf("manifest: chain broken at %s: ver %d, want %d", addr, m.Ver, expectVer)
		}

		cont, err := fn(addr, m)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}

		expectVer = m.Ver - 1
		addr = m.Prev
	}
	if expectVer > 0 {
		return fmt.Errorf("manifest: chain truncated, expected ver %d", expectVer)
	}
	return nil
}
