package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// substrates returns every Store implementation under test; the
// behavioral contract is identical across them.
func substrates(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range substrates(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "tip/0/1/missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CreateThenSwap(t *testing.T) {
	ctx := context.Background()
	for name, store := range substrates(t) {
		t.Run(name, func(t *testing.T) {
			key := "tip/0/1/entity"

			// 1. Creation asserts absence.
			require.NoError(t, store.CompareAndSwap(ctx, key, "", "v1"))

			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, "v1", v)

			// 2. Re-creating an existing key loses.
			err = store.CompareAndSwap(ctx, key, "", "v1-again")
			var casErr *CASError
			require.ErrorAs(t, err, &casErr)
			require.Equal(t, "v1", casErr.Actual)
			require.Equal(t, "", casErr.Expected)

			// 3. Swap with the right expectation advances.
			require.NoError(t, store.CompareAndSwap(ctx, key, "v1", "v2"))

			// 4. A stale expectation reports the actual value.
			err = store.CompareAndSwap(ctx, key, "v1", "v3")
			require.ErrorAs(t, err, &casErr)
			require.Equal(t, "v2", casErr.Actual)

			v, err = store.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, "v2", v)
		})
	}
}

func TestStore_ConcurrentCreation(t *testing.T) {
	ctx := context.Background()
	for name, store := range substrates(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 16
			key := "index/pointer"

			var wg sync.WaitGroup
			wins := make(chan string, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					value := fmt.Sprintf("writer-%d", i)
					if err := store.CompareAndSwap(ctx, key, "", value); err == nil {
						wins <- value
					}
				}(i)
			}
			wg.Wait()
			close(wins)

			// Exactly one creation wins, and the stored value is the
			// winner's.
			require.Len(t, wins, 1)
			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, <-wins, v)
		})
	}
}

func TestStore_ConcurrentSwapChain(t *testing.T) {
	// Writers loop read-modify-CAS; every value in 0..writers must be
	// written exactly once and the final value equals the writer count.
	ctx := context.Background()
	for name, store := range substrates(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 8
			key := "counter"
			require.NoError(t, store.CompareAndSwap(ctx, key, "", "0"))

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						cur, err := store.Get(ctx, key)
						require.NoError(t, err)
						var n int
						fmt.Sscanf(cur, "%d", &n)
						next := fmt.Sprintf("%d", n+1)
						err = store.CompareAndSwap(ctx, key, cur, next)
						if err == nil {
							return
						}
						var casErr *CASError
						require.ErrorAs(t, err, &casErr)
					}
				}()
			}
			wg.Wait()

			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, fmt.Sprintf("%d", writers), v)
		})
	}
}

func TestMemoryStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.FailWrites = true

	err := store.CompareAndSwap(ctx, "key", "", "v1")
	require.ErrorIs(t, err, ErrUnavailable)

	store.FailWrites = false
	require.NoError(t, store.CompareAndSwap(ctx, "key", "", "v1"))
	require.Equal(t, 1, store.Len())
}
