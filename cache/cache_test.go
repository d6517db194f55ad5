package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/Arke-Institute/arke/resource"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(1024, nil)

	_, ok := c.Get(ctx, "a")
	require.False(t, ok)

	c.Set(ctx, "a", []byte("alpha"))
	data, ok := c.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), data)
	require.Equal(t, int64(5), c.Size())

	// Same name again is a no-op: immutable blobs never change bytes.
	c.Set(ctx, "a", []byte("alpha"))
	require.Equal(t, int64(5), c.Size())
}

func TestLRU_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(30, nil)

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("blob-%d", i), make([]byte, 10))
	}
	require.Equal(t, int64(30), c.Size())

	// Touch blob-0 so blob-1 becomes the eviction candidate.
	_, ok := c.Get(ctx, "blob-0")
	require.True(t, ok)

	c.Set(ctx, "blob-3", make([]byte, 10))

	_, ok = c.Get(ctx, "blob-1")
	require.False(t, ok)
	for _, name := range []string{"blob-0", "blob-2", "blob-3"} {
		_, ok := c.Get(ctx, name)
		require.True(t, ok, name)
	}
}

func TestLRU_OversizedNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, nil)

	c.Set(ctx, "huge", make([]byte, 11))
	_, ok := c.Get(ctx, "huge")
	require.False(t, ok)
	require.Zero(t, c.Size())
}

func TestLRU_MemoryAccounting(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 25})
	c := NewLRU(1024, rc)

	c.Set(ctx, "a", make([]byte, 10))
	c.Set(ctx, "b", make([]byte, 10))
	require.Equal(t, int64(20), rc.MemoryUsage())

	// The global limit pushes back: inserting 10 more evicts "a".
	c.Set(ctx, "c", make([]byte, 10))
	require.Equal(t, int64(20), rc.MemoryUsage())

	_, ok := c.Get(ctx, "a")
	require.False(t, ok)
	_, ok = c.Get(ctx, "c")
	require.True(t, ok)
}
