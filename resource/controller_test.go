package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestController_MemoryLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.True(t, c.TryAcquireMemory(60))
	require.True(t, c.TryAcquireMemory(40))
	require.Equal(t, int64(100), c.MemoryUsage())

	// At the limit: no more until something is released.
	require.False(t, c.TryAcquireMemory(1))

	c.ReleaseMemory(40)
	require.Equal(t, int64(60), c.MemoryUsage())
	require.True(t, c.TryAcquireMemory(40))
}

func TestController_MemoryUnlimited(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireMemory(1<<40))
	require.Equal(t, int64(1<<40), c.MemoryUsage())
	c.ReleaseMemory(1 << 40)
	require.Zero(t, c.MemoryUsage())
}

func TestController_AcquireMemoryBlocks(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 10))

	// A blocked acquire must respect context cancellation.
	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(cancelCtx, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Release unblocks a waiter.
	done := make(chan error, 1)
	go func() {
		done <- c.AcquireMemory(ctx, 5)
	}()
	c.ReleaseMemory(10)
	require.NoError(t, <-done)
}

func TestController_BackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.True(t, c.TryAcquireBackground())
	require.True(t, c.TryAcquireBackground())
	require.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	require.True(t, c.TryAcquireBackground())
}

func TestController_DefaultsToOneWorker(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireBackground())
	require.False(t, c.TryAcquireBackground())
}

func TestController_IOPacing(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})
	ctx := context.Background()

	// The burst bucket covers the first request; a follow-up larger
	// than the remaining budget has to wait.
	start := time.Now()
	require.NoError(t, c.AcquireIO(ctx, 1000))
	require.NoError(t, c.AcquireIO(ctx, 100))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestController_IOUnlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}
