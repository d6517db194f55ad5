// Package index maintains the paginated enumeration of all entities.
//
// The structure is a hybrid: an append-only log chain of lifecycle
// events (the hot path, bounded by the snapshot threshold) over a
// chunked, immutable snapshot of everything older. Listing merges the
// two; a periodic rebuild folds the log into a fresh snapshot. The only
// mutable state is a single pointer record updated with the same CAS
// discipline as entity tips, so any process can recover the full index
// by reading one key.
package index

import (
	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/pi"
)

// PointerKey is the well-known kv key of the index pointer record.
const PointerKey = "index/pointer"

// Log entry kinds.
const (
	KindCreate = "create"
	KindUpdate = "update"
)

// LogEntry records one entity lifecycle event. Entries form their own
// immutable chain through Prev, independent of any entity's manifest
// chain. The chain is the audit trail: rebuilds advance the checkpoint
// but never truncate it.
type LogEntry struct {
	Kind string  `json:"kind"`
	PI   pi.PI   `json:"pi"`
	Ver  int     `json:"ver"`
	Tip  cid.CID `json:"tip"`
	TS   string  `json:"ts"`
	Prev cid.CID `json:"prev,omitempty"`
}

// Pointer is the single mutable root of the index.
type Pointer struct {
	SnapshotCID cid.CID `json:"snapshot_cid,omitempty"`
	LogHead     cid.CID `json:"log_head,omitempty"`
	EntityCount int     `json:"entity_count"`
	LogCount    int     `json:"log_count"`
}

// Entry is one enumerated entity.
type Entry struct {
	PI  pi.PI   `json:"pi"`
	Tip cid.CID `json:"tip"`
	Ver int     `json:"ver,omitempty"`
	TS  string  `json:"ts,omitempty"`
}

// ChunkRef describes one snapshot chunk. Entries inside a chunk are
// sorted by PI descending; First and Last bound that range so readers
// can seek to the right chunk without fetching the others.
type ChunkRef struct {
	CID   cid.CID `json:"cid"`
	Count int     `json:"count"`
	First pi.PI   `json:"first_pi"`
	Last  pi.PI   `json:"last_pi"`
}

// Snapshot is a point-in-time, immutable enumeration of all entities
// known at capture, partitioned into fixed-size chunks.
type Snapshot struct {
	ChunkSize   int        `json:"chunk_size"`
	Chunks      []ChunkRef `json:"chunks"`
	EntityCount int        `json:"entity_count"`
	LogCount    int        `json:"log_count"`
	Checkpoint  cid.CID    `json:"checkpoint,omitempty"`
	TS          string     `json:"ts"`
	Codec       string     `json:"codec"`
	Compression string     `json:"compression"`
}
