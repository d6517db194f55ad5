package index

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, e *Engine, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RecordCreate(ctx, testutil.SeqPI(i), tipFor(fmt.Sprint(i)), testTime))
	}
}

// collectPages chains cursors to exhaustion and returns every PI served.
func collectPages(t *testing.T, e *Engine, limit int) []pi.PI {
	t.Helper()
	ctx := context.Background()

	var out []pi.PI
	cursor := ""
	for {
		res, err := e.List(ctx, cursor, limit, false)
		require.NoError(t, err)
		for _, entry := range res.Entities {
			out = append(out, entry.PI)
		}
		if res.NextCursor == "" {
			return out
		}
		cursor = res.NextCursor
	}
}

func TestList_Empty(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})

	res, err := e.List(context.Background(), "", 10, false)
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.Empty(t, res.NextCursor)
}

func TestList_NewestFirst(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 5)

	res, err := e.List(context.Background(), "", 10, false)
	require.NoError(t, err)
	require.Len(t, res.Entities, 5)
	assert.Empty(t, res.NextCursor, "single page enumerations carry no cursor")

	for i, entry := range res.Entities {
		assert.Equal(t, testutil.SeqPI(4-i), entry.PI)
	}
}

func TestList_PaginationExactlyOnce(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 25)

	pis := collectPages(t, e, 10)
	require.Len(t, pis, 25)
	for i, p := range pis {
		require.Equal(t, testutil.SeqPI(24-i), p)
	}
}

func TestList_StableAcrossRebuild(t *testing.T) {
	// A rebuild mid-pagination must not shift positions: the cursor is
	// a PI, and the order is a property of the data.
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{ChunkSize: 7})
	seed(t, e, 25)

	page1, err := e.List(ctx, "", 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, page1.NextCursor)

	require.NoError(t, e.Rebuild(ctx))

	var rest []pi.PI
	cursor := page1.NextCursor
	for cursor != "" {
		res, err := e.List(ctx, cursor, 10, false)
		require.NoError(t, err)
		for _, entry := range res.Entities {
			rest = append(rest, entry.PI)
		}
		cursor = res.NextCursor
	}

	require.Len(t, rest, 15)
	for i, p := range rest {
		require.Equal(t, testutil.SeqPI(14-i), p)
	}
}

func TestList_MidPaginationCreate(t *testing.T) {
	// Entities created while a client paginates have larger PIs than
	// any position already served, so the remaining pages are
	// undisturbed: no duplicates, no gaps.
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 12)

	page1, err := e.List(ctx, "", 5, false)
	require.NoError(t, err)
	require.Len(t, page1.Entities, 5)

	require.NoError(t, e.RecordCreate(ctx, testutil.SeqPI(100), tipFor("100"), testTime))

	seen := make(map[pi.PI]struct{})
	for _, entry := range page1.Entities {
		seen[entry.PI] = struct{}{}
	}
	cursor := page1.NextCursor
	for cursor != "" {
		res, err := e.List(ctx, cursor, 5, false)
		require.NoError(t, err)
		for _, entry := range res.Entities {
			_, dup := seen[entry.PI]
			require.False(t, dup, "PI served twice: %s", entry.PI)
			seen[entry.PI] = struct{}{}
		}
		cursor = res.NextCursor
	}

	require.Len(t, seen, 12)
	for i := 0; i < 12; i++ {
		require.Contains(t, seen, testutil.SeqPI(i))
	}

	// A fresh enumeration starts with the newcomer.
	fresh, err := e.List(ctx, "", 1, false)
	require.NoError(t, err)
	require.Equal(t, testutil.SeqPI(100), fresh.Entities[0].PI)
}

func TestList_OverlaySupersedesSnapshot(t *testing.T) {
	// An entity updated after the last rebuild appears once, with the
	// hot log's tip, not the snapshot's stale one.
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 3)
	require.NoError(t, e.Rebuild(ctx))

	p := testutil.SeqPI(1)
	require.NoError(t, e.RecordUpdate(ctx, p, 2, tipFor("fresh"), testTime))

	res, err := e.List(ctx, "", 10, true)
	require.NoError(t, err)
	require.Len(t, res.Entities, 3)

	var hits int
	for _, entry := range res.Entities {
		if entry.PI == p {
			hits++
			assert.Equal(t, tipFor("fresh"), entry.Tip)
			assert.Equal(t, 2, entry.Ver)
		}
	}
	require.Equal(t, 1, hits)
}

func TestList_SnapshotChunked(t *testing.T) {
	// Small chunks force pagination to cross chunk boundaries and the
	// cursor seek to skip whole chunks.
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{ChunkSize: 4, Compression: CompressionZstd})
	seed(t, e, 21)
	require.NoError(t, e.Rebuild(ctx))

	pis := collectPages(t, e, 6)
	require.Len(t, pis, 21)
	for i, p := range pis {
		require.Equal(t, testutil.SeqPI(20-i), p)
	}

	// Resume deep inside the snapshot.
	res, err := e.List(ctx, e.encodeCursor(cursor{After: testutil.SeqPI(3)}), 10, false)
	require.NoError(t, err)
	require.Len(t, res.Entities, 3)
	require.Equal(t, testutil.SeqPI(2), res.Entities[0].PI)
}

func TestList_IncludeMeta(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 1)

	bare, err := e.List(ctx, "", 10, false)
	require.NoError(t, err)
	assert.Zero(t, bare.Entities[0].Ver)
	assert.Empty(t, bare.Entities[0].TS)
	assert.NotEmpty(t, bare.Entities[0].Tip)

	meta, err := e.List(ctx, "", 10, true)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Entities[0].Ver)
	assert.NotEmpty(t, meta.Entities[0].TS)
}

func TestList_LimitDefaults(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 5)

	res, err := e.List(ctx, "", 0, false)
	require.NoError(t, err)
	require.Len(t, res.Entities, 5)

	res, err = e.List(ctx, "", -3, false)
	require.NoError(t, err)
	require.Len(t, res.Entities, 5)
}

func TestList_BadCursor(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, Options{})
	seed(t, e, 1)

	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "%%%"},
		{name: "garbage payload", cursor: base64.RawURLEncoding.EncodeToString([]byte("not json"))},
		{name: "invalid position", cursor: base64.RawURLEncoding.EncodeToString([]byte(`{"after":"nope"}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.List(ctx, tt.cursor, 10, false)
			var curErr *CursorError
			require.ErrorAs(t, err, &curErr)
		})
	}
}
