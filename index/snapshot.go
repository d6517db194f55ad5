package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/kv"
	"github.com/Arke-Institute/arke/pi"
	"golang.org/x/sync/errgroup"
)

// chunkFetchParallelism bounds concurrent chunk fetches during rebuild.
const chunkFetchParallelism = 8

// Rebuild consolidates the prior snapshot and the hot log into a new
// chunked snapshot and swaps it into the pointer.
//
// The rebuild reads the log only up to the head captured at the start,
// so it is safe to run concurrently with ongoing appends: entries that
// land later stay in the hot window and are captured by the next
// rebuild. The log chain itself is never truncated.
func (e *Engine) Rebuild(ctx context.Context) error {
	_, ptr, err := e.loadPointer(ctx)
	if err != nil {
		return err
	}
	if ptr.LogHead == "" {
		return nil // nothing recorded yet
	}

	prior, err := e.snapshot(ctx, ptr.SnapshotCID)
	if err != nil {
		return err
	}
	if prior != nil && ptr.LogHead == prior.Checkpoint {
		return nil // snapshot already covers the whole log
	}

	head := ptr.LogHead
	started := time.Now()

	overlay, err := e.collectHotLog(ctx, head, prior)
	if err != nil {
		return err
	}

	var priorEntries []Entry
	if prior != nil {
		priorEntries, err = e.fetchAllChunks(ctx, prior)
		if err != nil {
			return err
		}
	}

	entries := mergeEntries(overlay, priorEntries)

	snap := Snapshot{
		ChunkSize:   e.chunkSize,
		EntityCount: len(entries),
		LogCount:    ptr.LogCount,
		Checkpoint:  head,
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
		Codec:       e.cas.Codec().Name(),
		Compression: e.comp.String(),
	}

	for start := 0; start < len(entries); start += e.chunkSize {
		end := min(start+e.chunkSize, len(entries))
		chunk := entries[start:end]

		data, err := e.encodeChunk(chunk)
		if err != nil {
			return err
		}
		if err := e.rc.AcquireIO(ctx, len(data)); err != nil {
			return err
		}
		chunkCID, err := e.cas.PutBytes(ctx, data)
		if err != nil {
			return err
		}
		snap.Chunks = append(snap.Chunks, ChunkRef{
			CID:   chunkCID,
			Count: len(chunk),
			First: chunk[0].PI,
			Last:  chunk[len(chunk)-1].PI,
		})
	}

	snapCID, err := e.cas.PutJSON(ctx, snap)
	if err != nil {
		return err
	}

	// Swap only the snapshot reference; appends that raced past the
	// captured head keep their log fields.
	for {
		raw, cur, err := e.loadPointer(ctx)
		if err != nil {
			return err
		}
		cur.SnapshotCID = snapCID
		err = e.savePointer(ctx, raw, cur)
		if err == nil {
			break
		}
		var casErr *kv.CASError
		if !errors.As(err, &casErr) {
			return err
		}
	}

	e.snapMu.Lock()
	e.snapCID = snapCID
	e.snapDoc = &snap
	e.snapMu.Unlock()

	e.logger.Info("snapshot rebuilt",
		"entities", snap.EntityCount,
		"chunks", len(snap.Chunks),
		"checkpoint", head,
		"elapsed", time.Since(started),
	)
	return nil
}

// collectHotLog walks the log from head back to the prior snapshot's
// checkpoint and returns the newest entry per PI, sorted by PI
// descending.
func (e *Engine) collectHotLog(ctx context.Context, head cid.CID, prior *Snapshot) ([]Entry, error) {
	var checkpoint cid.CID
	if prior != nil {
		checkpoint = prior.Checkpoint
	}

	newest := make(map[pi.PI]Entry)
	addr := head
	for addr != "" && addr != checkpoint {
		var entry LogEntry
		if err := e.cas.GetJSON(ctx, addr, &entry); err != nil {
			return nil, fmt.Errorf("index: walk log: %w", err)
		}
		// Walking newest to oldest: the first occurrence of a PI is
		// its current state within the window.
		if _, ok := newest[entry.PI]; !ok {
			newest[entry.PI] = Entry{PI: entry.PI, Tip: entry.Tip, Ver: entry.Ver, TS: entry.TS}
		}
		addr = entry.Prev
	}

	out := make([]Entry, 0, len(newest))
	for _, entry := range newest {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PI > out[j].PI })
	return out, nil
}

// fetchAllChunks loads every chunk of snap, in parallel, preserving
// order.
func (e *Engine) fetchAllChunks(ctx context.Context, snap *Snapshot) ([]Entry, error) {
	chunks := make([][]Entry, len(snap.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkFetchParallelism)
	for i, ref := range snap.Chunks {
		i, ref := i, ref
		g.Go(func() error {
			entries, err := e.loadChunk(gctx, ref)
			if err != nil {
				return err
			}
			chunks[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Entry
	for _, entries := range chunks {
		out = append(out, entries...)
	}
	return out, nil
}

// mergeEntries merges two PI-descending streams, overlay winning on
// duplicate PIs.
func mergeEntries(overlay, prior []Entry) []Entry {
	inOverlay := make(map[pi.PI]struct{}, len(overlay))
	for _, entry := range overlay {
		inOverlay[entry.PI] = struct{}{}
	}

	out := make([]Entry, 0, len(overlay)+len(prior))
	i, j := 0, 0
	for i < len(overlay) || j < len(prior) {
		// Prior entries superseded by the overlay are dropped; the
		// overlay emits the newer state at the same position.
		if j < len(prior) {
			if _, ok := inOverlay[prior[j].PI]; ok {
				j++
				continue
			}
		}
		switch {
		case i >= len(overlay):
			out = append(out, prior[j])
			j++
		case j >= len(prior):
			out = append(out, overlay[i])
			i++
		case overlay[i].PI > prior[j].PI:
			out = append(out, overlay[i])
			i++
		default:
			out = append(out, prior[j])
			j++
		}
	}
	return out
}

// encodeChunk serializes and compresses one chunk of entries.
func (e *Engine) encodeChunk(entries []Entry) ([]byte, error) {
	data, err := e.cas.Codec().Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("index: encode chunk: %w", err)
	}
	return compress(e.comp, data)
}

// loadChunk fetches and decodes one snapshot chunk.
func (e *Engine) loadChunk(ctx context.Context, ref ChunkRef) ([]Entry, error) {
	blob, err := e.cas.GetBytes(ctx, ref.CID)
	if err != nil {
		return nil, err
	}
	data, err := decompress(blob)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := e.cas.Codec().Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("index: decode chunk %s: %w", ref.CID, err)
	}
	if len(entries) != ref.Count {
		return nil, fmt.Errorf("index: chunk %s has %d entries, want %d", ref.CID, len(entries), ref.Count)
	}
	return entries, nil
}

// lookupSnapshot finds the entry for p in snap, fetching at most one
// chunk. Chunk bounds make the seek a binary search over metadata.
func (e *Engine) lookupSnapshot(ctx context.Context, snap *Snapshot, p pi.PI) (Entry, bool, error) {
	// Chunks are PI-descending: Chunks[i].First >= ... >= Chunks[i].Last.
	n := sort.Search(len(snap.Chunks), func(i int) bool {
		return snap.Chunks[i].Last <= p
	})
	if n == len(snap.Chunks) || snap.Chunks[n].First < p {
		return Entry{}, false, nil
	}

	entries, err := e.loadChunk(ctx, snap.Chunks[n])
	if err != nil {
		return Entry{}, false, err
	}
	m := sort.Search(len(entries), func(i int) bool {
		return entries[i].PI <= p
	})
	if m < len(entries) && entries[m].PI == p {
		return entries[m], true, nil
	}
	return Entry{}, false, nil
}

// Chunk returns snapshot chunk i, for O(1) random access by position
// (chunk index = offset / chunk size).
func (e *Engine) Chunk(ctx context.Context, snap *Snapshot, i int) ([]Entry, error) {
	if i < 0 || i >= len(snap.Chunks) {
		return nil, fmt.Errorf("index: chunk index %d out of range [0,%d)", i, len(snap.Chunks))
	}
	return e.loadChunk(ctx, snap.Chunks[i])
}
