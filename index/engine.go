package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Arke-Institute/arke/cas"
	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/kv"
	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/resource"
)

const (
	// DefaultSnapshotThreshold is the hot-log length that triggers a
	// snapshot rebuild.
	DefaultSnapshotThreshold = 10_000

	// DefaultChunkSize is the number of entries per snapshot chunk.
	DefaultChunkSize = 1024
)

// Options configures an Engine.
type Options struct {
	// ChunkSize is the number of entries per snapshot chunk.
	ChunkSize int

	// SnapshotThreshold is the hot-log length that triggers a rebuild.
	SnapshotThreshold int

	// Compression is applied to snapshot chunk payloads.
	Compression Compression

	// AutoRebuild enables threshold-triggered background rebuilds.
	AutoRebuild bool

	// Logger receives rebuild and dedup diagnostics. nil discards.
	Logger *slog.Logger

	// Resource bounds background rebuild concurrency and IO.
	Resource *resource.Controller

	// OnRebuild, if set, is invoked after every threshold-triggered
	// background rebuild with its duration and outcome.
	OnRebuild func(elapsed time.Duration, err error)
}

// Engine maintains the log/snapshot hybrid index.
type Engine struct {
	cas       *cas.Store
	kv        kv.Store
	chunkSize int
	threshold int
	comp      Compression
	auto      bool
	logger    *slog.Logger
	rc        *resource.Controller
	onRebuild func(time.Duration, error)

	// seen tracks the highest recorded version per PI within the
	// current log window, for (pi, ver) idempotency under
	// at-least-once delivery. scannedHead marks how far the map has
	// been hydrated from the shared log chain.
	mu          sync.Mutex
	seen        map[pi.PI]int
	scannedHead cid.CID

	// Snapshot documents are immutable, so the last one fetched is
	// cached by address.
	snapMu  sync.Mutex
	snapCID cid.CID
	snapDoc *Snapshot

	rebuildWG sync.WaitGroup
}

// NewEngine creates an index engine over the given stores.
func NewEngine(store *cas.Store, kvs kv.Store, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SnapshotThreshold <= 0 {
		opts.SnapshotThreshold = DefaultSnapshotThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Resource == nil {
		opts.Resource = resource.NewController(resource.Config{})
	}
	return &Engine{
		cas:       store,
		kv:        kvs,
		chunkSize: opts.ChunkSize,
		threshold: opts.SnapshotThreshold,
		comp:      opts.Compression,
		auto:      opts.AutoRebuild,
		logger:    opts.Logger,
		rc:        opts.Resource,
		onRebuild: opts.OnRebuild,
		seen:      make(map[pi.PI]int),
	}
}

// Wait blocks until any in-flight background rebuild finishes.
func (e *Engine) Wait() {
	e.rebuildWG.Wait()
}

// RecordCreate appends a create event for a new entity (ver=1).
func (e *Engine) RecordCreate(ctx context.Context, p pi.PI, tip cid.CID, ts time.Time) error {
	return e.record(ctx, LogEntry{Kind: KindCreate, PI: p, Ver: 1, Tip: tip, TS: ts.UTC().Format(time.RFC3339Nano)})
}

// RecordUpdate appends an update event for an existing entity (ver>1).
func (e *Engine) RecordUpdate(ctx context.Context, p pi.PI, ver int, tip cid.CID, ts time.Time) error {
	return e.record(ctx, LogEntry{Kind: KindUpdate, PI: p, Ver: ver, Tip: tip, TS: ts.UTC().Format(time.RFC3339Nano)})
}

// record appends entry to the log chain and advances the pointer.
// Appends are serialized only among themselves, by the pointer CAS: on
// a lost race the loop re-reads the pointer and relinks the entry. A
// losing iteration leaves an unreferenced entry blob behind, which is
// harmless content-addressed garbage.
func (e *Engine) record(ctx context.Context, entry LogEntry) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, ptr, err := e.loadPointer(ctx)
		if err != nil {
			return err
		}
		snap, err := e.snapshot(ctx, ptr.SnapshotCID)
		if err != nil {
			return err
		}

		// Hydrate the dedup map from any entries other writers pushed
		// since we last looked, then drop duplicate notifications.
		if err := e.syncSeen(ctx, ptr.LogHead, snap); err != nil {
			return err
		}
		dup, err := e.alreadyRecorded(ctx, snap, entry.PI, entry.Ver)
		if err != nil {
			return err
		}
		if dup {
			e.logger.Debug("duplicate index notification ignored",
				"pi", entry.PI, "ver", entry.Ver)
			return nil
		}

		entry.Prev = ptr.LogHead
		entryCID, err := e.cas.PutJSON(ctx, entry)
		if err != nil {
			return err
		}

		next := ptr
		next.LogHead = entryCID
		next.LogCount++
		if entry.Kind == KindCreate {
			next.EntityCount++
		}

		err = e.savePointer(ctx, raw, next)
		if err == nil {
			e.markRecorded(entry.PI, entry.Ver, entryCID)
			e.maybeRebuild(ctx, next, snap)
			return nil
		}
		var casErr *kv.CASError
		if errors.As(err, &casErr) {
			continue // another producer advanced the head; relink
		}
		return err
	}
}

// alreadyRecorded consults the warm map first, then the snapshot for
// versions that have rolled out of the hot log (a late duplicate after
// a rebuild or a process restart).
func (e *Engine) alreadyRecorded(ctx context.Context, snap *Snapshot, p pi.PI, ver int) (bool, error) {
	e.mu.Lock()
	recorded := e.seen[p]
	e.mu.Unlock()
	if recorded >= ver {
		return true, nil
	}
	if snap == nil {
		return false, nil
	}

	prior, ok, err := e.lookupSnapshot(ctx, snap, p)
	if err != nil {
		return false, err
	}
	return ok && prior.Ver >= ver, nil
}

func (e *Engine) markRecorded(p pi.PI, ver int, head cid.CID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen[p] < ver {
		e.seen[p] = ver
	}
	e.scannedHead = head
}

// syncSeen walks the log from head down to the last scanned position
// (or the snapshot checkpoint, whichever comes first), folding newer
// entries into the dedup map. The walk is bounded by the snapshot
// threshold in steady state.
func (e *Engine) syncSeen(ctx context.Context, head cid.CID, snap *Snapshot) error {
	e.mu.Lock()
	stop := e.scannedHead
	e.mu.Unlock()

	var checkpoint cid.CID
	if snap != nil {
		checkpoint = snap.Checkpoint
	}

	if head == "" || head == stop {
		return nil
	}

	var entries []LogEntry
	addr := head
	for addr != "" && addr != stop && addr != checkpoint {
		var entry LogEntry
		if err := e.cas.GetJSON(ctx, addr, &entry); err != nil {
			return fmt.Errorf("index: scan log: %w", err)
		}
		entries = append(entries, entry)
		addr = entry.Prev
	}

	e.mu.Lock()
	for _, entry := range entries {
		if e.seen[entry.PI] < entry.Ver {
			e.seen[entry.PI] = entry.Ver
		}
	}
	if stop == e.scannedHead {
		e.scannedHead = head
	}
	e.mu.Unlock()
	return nil
}

// maybeRebuild kicks off a background snapshot rebuild when the hot
// log has outgrown the threshold and a worker slot is free. Skipping
// is fine: the next record will trigger again, and a failed rebuild
// loses nothing because the log chain is authoritative.
func (e *Engine) maybeRebuild(ctx context.Context, ptr Pointer, snap *Snapshot) {
	if !e.auto {
		return
	}
	logLen := ptr.LogCount
	if snap != nil {
		logLen -= snap.LogCount
	}
	if logLen < e.threshold {
		return
	}
	if !e.rc.TryAcquireBackground() {
		return
	}

	e.rebuildWG.Add(1)
	go func() {
		defer e.rebuildWG.Done()
		defer e.rc.ReleaseBackground()

		// Detached from the caller's request context: the triggering
		// write has already committed.
		started := time.Now()
		err := e.Rebuild(context.Background())
		if err != nil {
			e.logger.Error("snapshot rebuild failed", "error", err)
		}
		if e.onRebuild != nil {
			e.onRebuild(time.Since(started), err)
		}
	}()
}

// snapshot returns the snapshot document at addr, or nil when the
// index has none yet.
func (e *Engine) snapshot(ctx context.Context, addr cid.CID) (*Snapshot, error) {
	if addr == "" {
		return nil, nil
	}

	e.snapMu.Lock()
	if e.snapCID == addr && e.snapDoc != nil {
		doc := e.snapDoc
		e.snapMu.Unlock()
		return doc, nil
	}
	e.snapMu.Unlock()

	var snap Snapshot
	if err := e.cas.GetJSON(ctx, addr, &snap); err != nil {
		return nil, fmt.Errorf("index: load snapshot: %w", err)
	}

	e.snapMu.Lock()
	e.snapCID = addr
	e.snapDoc = &snap
	e.snapMu.Unlock()
	return &snap, nil
}

// loadPointer reads the pointer record. An absent record decodes as
// the zero pointer with its raw form "", which feeds straight into the
// creation CAS.
func (e *Engine) loadPointer(ctx context.Context) (string, Pointer, error) {
	raw, err := e.kv.Get(ctx, PointerKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", Pointer{}, nil
	}
	if err != nil {
		return "", Pointer{}, fmt.Errorf("index: load pointer: %w", err)
	}

	var ptr Pointer
	if err := e.cas.Codec().Unmarshal([]byte(raw), &ptr); err != nil {
		return "", Pointer{}, fmt.Errorf("index: decode pointer: %w", err)
	}
	return raw, ptr, nil
}

func (e *Engine) savePointer(ctx context.Context, expectedRaw string, ptr Pointer) error {
	data, err := e.cas.Codec().Marshal(ptr)
	if err != nil {
		return fmt.Errorf("index: encode pointer: %w", err)
	}
	return e.kv.CompareAndSwap(ctx, PointerKey, expectedRaw, string(data))
}

// Pointer returns the current pointer record.
func (e *Engine) Pointer(ctx context.Context) (Pointer, error) {
	_, ptr, err := e.loadPointer(ctx)
	return ptr, err
}
