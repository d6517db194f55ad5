package blobstore

import (
	"context"
	"testing"

	"github.com/Arke-Institute/arke/cache"
	"github.com/stretchr/testify/require"
)

func TestCachingStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	store := NewCachingStore(inner, cache.NewLRU(1<<20, nil))

	require.NoError(t, inner.Put(ctx, "blob", []byte("content")))

	// First read populates the cache.
	data, err := store.Get(ctx, "blob")
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)

	// Remove from the substrate: the cached copy must keep serving.
	// Blobs are immutable, so this can only happen via offline GC and
	// a stale cache is still correct content.
	require.NoError(t, inner.Delete(ctx, "blob"))

	data, err = store.Get(ctx, "blob")
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)

	ok, err := store.Has(ctx, "blob")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachingStore_WritePopulates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	store := NewCachingStore(inner, cache.NewLRU(1<<20, nil))

	require.NoError(t, store.Put(ctx, "blob", []byte("content")))

	// Write-then-read is served from memory even if the substrate
	// goes away.
	require.NoError(t, inner.Delete(ctx, "blob"))

	data, err := store.Get(ctx, "blob")
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)
}

func TestCachingStore_MissFallsThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	store := NewCachingStore(inner, cache.NewLRU(1<<20, nil))

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Has(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCachingStore_FailedPutNotCached(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	inner.FailPuts = true
	store := NewCachingStore(inner, cache.NewLRU(1<<20, nil))

	require.ErrorIs(t, store.Put(ctx, "blob", []byte("content")), ErrUnavailable)

	// The cache must not pretend the write landed.
	_, err := store.Get(ctx, "blob")
	require.ErrorIs(t, err, ErrNotFound)
}
