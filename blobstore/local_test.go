package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	// 1. Put creates shard directories as needed
	require.NoError(t, store.Put(ctx, "cas/ab/blob1", []byte("one")))

	data, err := store.Get(ctx, "cas/ab/blob1")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)

	// 2. Has
	ok, err := store.Has(ctx, "cas/ab/blob1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Has(ctx, "cas/ab/missing")
	require.NoError(t, err)
	require.False(t, ok)

	// 3. List is sorted and prefix-filtered
	require.NoError(t, store.Put(ctx, "cas/cd/blob2", []byte("two")))
	require.NoError(t, store.Put(ctx, "tip/0/1/key", []byte("tip")))

	names, err := store.List(ctx, "cas/")
	require.NoError(t, err)
	require.Equal(t, []string{"cas/ab/blob1", "cas/cd/blob2"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"cas/ab/blob1", "cas/cd/blob2", "tip/0/1/key"}, all)

	// 4. Delete twice is fine
	require.NoError(t, store.Delete(ctx, "cas/ab/blob1"))
	require.NoError(t, store.Delete(ctx, "cas/ab/blob1"))

	_, err = store.Get(ctx, "cas/ab/blob1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_OverwriteSameName(t *testing.T) {
	// Content-addressed callers may re-put the same name; last write
	// wins and readers never see a partial blob.
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "blob", []byte("first")))
	require.NoError(t, store.Put(ctx, "blob", []byte("first")))

	data, err := store.Get(ctx, "blob")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)
}

func TestLocalStore_ListSkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir)

	require.NoError(t, store.Put(ctx, "shard/blob", []byte("data")))

	// A leftover temp file from a crashed writer must stay invisible.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shard", ".tmp-12345"), []byte("junk"), 0o600))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"shard/blob"}, names)
}

func TestLocalStore_EmptyRoot(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(filepath.Join(t.TempDir(), "never-created"))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
