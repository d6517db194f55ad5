package index

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Arke-Institute/arke/pi"
)

const (
	// DefaultListLimit is used when the caller passes limit <= 0.
	DefaultListLimit = 100

	// MaxListLimit caps a single page.
	MaxListLimit = 1000
)

// CursorError reports a pagination cursor that cannot be resolved.
type CursorError struct {
	Reason string
	cause  error
}

func (e *CursorError) Error() string {
	return fmt.Sprintf("index: invalid cursor: %s", e.Reason)
}

func (e *CursorError) Unwrap() error { return e.cause }

// ListResult is one page of the enumeration.
type ListResult struct {
	Entities   []Entry
	NextCursor string // empty when the enumeration is exhausted
}

// cursor is the decoded pagination position. It encodes the last PI
// the caller has seen, which stays resolvable across snapshot rebuilds
// because the enumeration order is a property of the data, not of any
// particular snapshot generation.
type cursor struct {
	After pi.PI `json:"after"`
}

func (e *Engine) encodeCursor(c cursor) string {
	data, _ := e.cas.Codec().Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func (e *Engine) decodeCursor(s string) (cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, &CursorError{Reason: "not base64", cause: err}
	}
	var c cursor
	if err := e.cas.Codec().Unmarshal(data, &c); err != nil {
		return cursor{}, &CursorError{Reason: "malformed payload", cause: err}
	}
	if err := pi.Validate(string(c.After)); err != nil {
		return cursor{}, &CursorError{Reason: "bad position", cause: err}
	}
	return c, nil
}

// List returns one page of the entity enumeration, newest first
// (PI descending; PIs sort by creation time). The order is
// deterministic and resumable: chaining NextCursor values visits every
// entity that existed before the first call exactly once. Entities
// created mid-pagination have larger PIs than any page already served,
// so they never displace or duplicate existing positions.
//
// When includeMeta is false, entries carry only PI and tip.
func (e *Engine) List(ctx context.Context, cursorStr string, limit int, includeMeta bool) (*ListResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var after pi.PI
	if cursorStr != "" {
		c, err := e.decodeCursor(cursorStr)
		if err != nil {
			return nil, err
		}
		after = c.After
	}

	_, ptr, err := e.loadPointer(ctx)
	if err != nil {
		return nil, err
	}
	if ptr.LogHead == "" && ptr.SnapshotCID == "" {
		return &ListResult{}, nil
	}

	snap, err := e.snapshot(ctx, ptr.SnapshotCID)
	if err != nil {
		return nil, err
	}

	// Entities recorded since the checkpoint come straight off the hot
	// log; everything older is served from snapshot chunks.
	overlay, err := e.collectHotLog(ctx, ptr.LogHead, snap)
	if err != nil {
		return nil, err
	}
	inOverlay := make(map[pi.PI]struct{}, len(overlay))
	for _, entry := range overlay {
		inOverlay[entry.PI] = struct{}{}
	}

	oi := 0 // overlay position
	if after != "" {
		for oi < len(overlay) && overlay[oi].PI >= after {
			oi++
		}
	}

	si, err := e.newSnapshotIter(ctx, snap, after)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, limit)
	for len(out) < limit {
		next, ok, err := nextMerged(ctx, overlay, &oi, si, inOverlay)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !includeMeta {
			next = Entry{PI: next.PI, Tip: next.Tip}
		}
		out = append(out, next)
	}

	res := &ListResult{Entities: out}
	if len(out) == limit {
		// More may remain; peek without consuming.
		if _, ok, err := nextMerged(ctx, overlay, &oi, si, inOverlay); err != nil {
			return nil, err
		} else if ok {
			res.NextCursor = e.encodeCursor(cursor{After: out[len(out)-1].PI})
		}
	}
	return res, nil
}

// nextMerged pops the next entry in PI-descending order from the
// overlay and the snapshot iterator, overlay winning on duplicates.
func nextMerged(ctx context.Context, overlay []Entry, oi *int, si *snapshotIter, inOverlay map[pi.PI]struct{}) (Entry, bool, error) {
	for {
		snapEntry, snapOK, err := si.peek(ctx)
		if err != nil {
			return Entry{}, false, err
		}
		// Snapshot entries superseded by the hot log are skipped; the
		// overlay carries their current tip.
		if snapOK {
			if _, ok := inOverlay[snapEntry.PI]; ok {
				si.next()
				continue
			}
		}

		overlayOK := *oi < len(overlay)
		switch {
		case !overlayOK && !snapOK:
			return Entry{}, false, nil
		case !snapOK:
			entry := overlay[*oi]
			*oi++
			return entry, true, nil
		case !overlayOK:
			si.next()
			return snapEntry, true, nil
		case overlay[*oi].PI > snapEntry.PI:
			entry := overlay[*oi]
			*oi++
			return entry, true, nil
		default:
			si.next()
			return snapEntry, true, nil
		}
	}
}

// snapshotIter streams snapshot entries in PI-descending order,
// fetching one chunk at a time and seeking past the cursor position
// using chunk bounds (skipped chunks are never fetched).
type snapshotIter struct {
	engine   *Engine
	snap     *Snapshot
	chunkIdx int
	entries  []Entry
	pos      int
	after    pi.PI
}

func (e *Engine) newSnapshotIter(ctx context.Context, snap *Snapshot, after pi.PI) (*snapshotIter, error) {
	it := &snapshotIter{engine: e, snap: snap, after: after}
	if snap == nil {
		return it, nil
	}

	// Seek: skip chunks entirely covered by positions already served.
	for it.chunkIdx < len(snap.Chunks) && after != "" && snap.Chunks[it.chunkIdx].Last >= after {
		it.chunkIdx++
	}
	return it, nil
}

// peek returns the current entry without consuming it.
func (it *snapshotIter) peek(ctx context.Context) (Entry, bool, error) {
	for {
		if it.snap == nil || it.chunkIdx >= len(it.snap.Chunks) {
			return Entry{}, false, nil
		}
		if it.entries == nil {
			entries, err := it.engine.loadChunk(ctx, it.snap.Chunks[it.chunkIdx])
			if err != nil {
				return Entry{}, false, err
			}
			it.entries = entries
			it.pos = 0
			// The boundary chunk may straddle the cursor position.
			if it.after != "" {
				for it.pos < len(it.entries) && it.entries[it.pos].PI >= it.after {
					it.pos++
				}
			}
		}
		if it.pos < len(it.entries) {
			return it.entries[it.pos], true, nil
		}
		it.chunkIdx++
		it.entries = nil
	}
}

// next consumes the current entry.
func (it *snapshotIter) next() {
	it.pos++
}
