package arke

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Arke-Institute/arke/blobstore"
	"github.com/Arke-Institute/arke/cas"
	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/index"
	"github.com/Arke-Institute/arke/kv"
	"github.com/Arke-Institute/arke/manifest"
	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/relation"
	"github.com/Arke-Institute/arke/resource"
	"github.com/Arke-Institute/arke/tip"
)

// notifyTimeout bounds one asynchronous index notification.
const notifyTimeout = 30 * time.Second

// Entry is one row of an enumeration page.
type Entry = index.Entry

// ListResult is one page of the entity enumeration.
type ListResult = index.ListResult

// Result reports a committed write.
type Result struct {
	PI  pi.PI
	Ver int
	CID cid.CID // manifest address, now the entity's tip
}

// CreateRequest describes a new entity. All fields are optional: an
// empty request creates an entity with an empty ver=1 manifest.
type CreateRequest struct {
	Components map[string]cid.CID
	Parent     pi.PI
	Children   []pi.PI
	Note       string
}

// AppendRequest describes a version append against an existing entity.
type AppendRequest struct {
	// ExpectTip, when set, asserts the tip the caller based its delta
	// on. A mismatch fails with CASError before anything is written.
	ExpectTip cid.CID

	// Delta is merged into the current manifest state. It must change
	// something.
	Delta manifest.Delta
}

// Registry is the entity registry: content store, tip records, index
// and relationship maintenance behind one facade.
type Registry struct {
	cas       *cas.Store
	tips      *tip.Registry
	chain     *manifest.Chain
	index     *index.Engine
	relations *relation.Maintainer
	rc        *resource.Controller
	metrics   MetricsCollector
	logger    *Logger
	clock     func() time.Time
	async     bool

	wg sync.WaitGroup // in-flight async index notifications
}

// New creates a registry over the given substrates. blobs holds all
// immutable content; kvs holds the mutable tip records and the index
// pointer, and its CompareAndSwap is what serializes writers.
func New(blobs blobstore.Store, kvs kv.Store, optFns ...Option) (*Registry, error) {
	if blobs == nil {
		return nil, fmt.Errorf("arke: blobstore is required")
	}
	if kvs == nil {
		return nil, fmt.Errorf("arke: kv store is required")
	}
	opts := applyOptions(optFns)

	rc := resource.NewController(opts.resourceConfig)
	store := cas.New(blobs, opts.codec)

	r := &Registry{
		cas:     store,
		tips:    tip.NewRegistry(kvs),
		chain:   manifest.NewChain(store),
		rc:      rc,
		metrics: opts.metricsCollector,
		logger:  opts.logger,
		clock:   opts.clock,
		async:   opts.asyncIndexing,
	}

	r.index = index.NewEngine(store, kvs, index.Options{
		ChunkSize:         opts.chunkSize,
		SnapshotThreshold: opts.snapshotThreshold,
		Compression:       opts.compression,
		AutoRebuild:       true,
		Logger:            opts.logger.Logger,
		Resource:          rc,
		OnRebuild:         opts.metricsCollector.RecordRebuild,
	})

	// The maintainer logs through OnResult, so its own logger stays
	// quiet; otherwise every side effect would be reported twice.
	r.relations = relation.NewMaintainer(relationAdapter{r}, relation.Options{
		Resource: rc,
		OnResult: func(effect relation.SideEffect, status relation.Status, err error) {
			r.logger.LogSideEffect(effect, status, err)
			r.metrics.RecordSideEffect(status == relation.StatusApplied)
		},
	})

	return r, nil
}

// Close drains asynchronous work: pending index notifications,
// relationship side effects and background snapshot rebuilds.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	// Side effects issue appends of their own, which in turn notify the
	// index, so the maintainer drains first.
	r.relations.Wait()
	r.wg.Wait()
	r.index.Wait()
	return nil
}

// Create mints a new PI, writes its ver=1 manifest and installs the
// tip. The tip CAS asserts absence, so a PI can never be created twice.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	start := time.Now()
	res, err := r.create(ctx, req)
	r.metrics.RecordCreate(time.Since(start), err)
	if err != nil {
		r.logger.LogCreate(ctx, "", "", err)
		return nil, err
	}
	r.logger.LogCreate(ctx, res.PI, res.CID, nil)
	return res, nil
}

func (r *Registry) create(ctx context.Context, req CreateRequest) (*Result, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	d := manifest.Delta{
		Components:  req.Components,
		ChildrenAdd: req.Children,
	}
	if req.Parent != "" {
		parent := req.Parent
		d.Parent = &parent
	}
	if req.Note != "" {
		note := req.Note
		d.Note = &note
	}

	p := pi.New()
	ts := r.clock()
	m := manifest.First(p, ts, d)

	mCID, err := r.chain.Append(ctx, m)
	if err != nil {
		return nil, translateError(err)
	}
	if err := r.tips.CompareAndSwap(ctx, p, "", mCID); err != nil {
		return nil, translateError(err)
	}

	r.notify(ctx, commit{
		pi:  p,
		ver: 1,
		tip: mCID,
		ts:  ts,
		effects: relation.Plan(relation.Change{
			PI:            p,
			ParentSet:     req.Parent,
			ChildrenAdded: req.Children,
		}),
	})

	return &Result{PI: p, Ver: 1, CID: mCID}, nil
}

// Append commits the next version of an entity.
//
// The sequence is: resolve the current tip T0; fail fast when the
// caller's ExpectTip disagrees; load and merge; write the new manifest
// with Prev=T0; compare-and-swap the tip from T0 to the new address.
// A lost CAS surfaces as CASError carrying the winner's tip and is
// never retried internally: rebasing means re-reading state the
// caller's delta may depend on, which only the caller can do.
func (r *Registry) Append(ctx context.Context, p pi.PI, req AppendRequest) (*Result, error) {
	start := time.Now()
	res, err := r.appendVersion(ctx, p, req.ExpectTip, req.Delta, true)
	r.metrics.RecordAppend(time.Since(start), err)
	if err != nil {
		r.logger.LogAppend(ctx, p, 0, "", err)
		return nil, err
	}
	r.logger.LogAppend(ctx, p, res.Ver, res.CID, nil)
	return res, nil
}

func (r *Registry) appendVersion(ctx context.Context, p pi.PI, expect cid.CID, d manifest.Delta, propagate bool) (*Result, error) {
	if err := pi.Validate(string(p)); err != nil {
		return nil, translateError(err)
	}
	if d.Empty() {
		return nil, &ValidationError{Field: "delta", Reason: "no changes"}
	}

	t0, err := r.tips.Resolve(ctx, p)
	if err != nil {
		return nil, translateError(err)
	}
	if expect != "" && expect != t0 {
		return nil, &CASError{PI: p, Expected: expect, Actual: t0}
	}

	prior, err := r.chain.Load(ctx, t0)
	if err != nil {
		return nil, translateError(err)
	}

	ts := r.clock()
	next := prior.Next(t0, ts, d)
	nextCID, err := r.chain.Append(ctx, next)
	if err != nil {
		return nil, translateError(err)
	}
	if err := r.tips.CompareAndSwap(ctx, p, t0, nextCID); err != nil {
		// The manifest blob stays behind as unreferenced content; a
		// successful resubmit of the same delta will address it again.
		return nil, translateError(err)
	}

	c := commit{pi: p, ver: next.Ver, tip: nextCID, ts: ts}
	if propagate {
		c.effects = relation.Plan(relationChange(prior, next))
	}
	r.notify(ctx, c)

	return &Result{PI: p, Ver: next.Ver, CID: nextCID}, nil
}

// relationChange diffs the relationship fields of two adjacent versions.
func relationChange(prior, next *manifest.Manifest) relation.Change {
	ch := relation.Change{PI: next.PI}

	if next.ParentPI != prior.ParentPI {
		ch.ParentSet = next.ParentPI
		ch.ParentCleared = prior.ParentPI
	}
	for _, c := range next.ChildrenPI {
		if !prior.HasChild(c) {
			ch.ChildrenAdded = append(ch.ChildrenAdded, c)
		}
	}
	for _, c := range prior.ChildrenPI {
		if !next.HasChild(c) {
			ch.ChildrenRemoved = append(ch.ChildrenRemoved, c)
		}
	}
	return ch
}

// Resolve returns the current tip CID for p.
func (r *Registry) Resolve(ctx context.Context, p pi.PI) (cid.CID, error) {
	start := time.Now()
	t, err := r.resolve(ctx, p)
	r.metrics.RecordResolve(time.Since(start), err)
	return t, err
}

func (r *Registry) resolve(ctx context.Context, p pi.PI) (cid.CID, error) {
	if err := pi.Validate(string(p)); err != nil {
		return "", translateError(err)
	}
	t, err := r.tips.Resolve(ctx, p)
	if err != nil {
		return "", translateError(err)
	}
	return t, nil
}

// Get returns the current manifest of p together with its address.
func (r *Registry) Get(ctx context.Context, p pi.PI) (*manifest.Manifest, cid.CID, error) {
	start := time.Now()
	m, t, err := r.get(ctx, p)
	r.metrics.RecordResolve(time.Since(start), err)
	return m, t, err
}

func (r *Registry) get(ctx context.Context, p pi.PI) (*manifest.Manifest, cid.CID, error) {
	t, err := r.resolve(ctx, p)
	if err != nil {
		return nil, "", err
	}
	m, err := r.chain.Load(ctx, t)
	if err != nil {
		return nil, "", translateError(err)
	}
	return m, t, nil
}

// History walks the version chain of p from the current tip back to
// ver=1, newest first. fn returning false stops the walk early.
func (r *Registry) History(ctx context.Context, p pi.PI, fn func(addr cid.CID, m *manifest.Manifest) (bool, error)) error {
	t, err := r.resolve(ctx, p)
	if err != nil {
		return err
	}
	return translateError(r.chain.Walk(ctx, t, fn))
}

// List returns one page of the entity enumeration, newest first. An
// empty cursor starts from the top; chain NextCursor values to resume.
// When includeMeta is true, entries carry version and timestamp in
// addition to PI and tip.
func (r *Registry) List(ctx context.Context, cursor string, limit int, includeMeta bool) (*ListResult, error) {
	start := time.Now()
	res, err := r.index.List(ctx, cursor, limit, includeMeta)
	if err != nil {
		err = translateError(err)
		r.metrics.RecordList(0, time.Since(start), err)
		r.logger.LogList(ctx, limit, 0, err)
		return nil, err
	}
	r.metrics.RecordList(len(res.Entities), time.Since(start), nil)
	r.logger.LogList(ctx, limit, len(res.Entities), nil)
	return res, nil
}

// RebuildIndex forces a snapshot rebuild now, instead of waiting for
// the hot log to reach the threshold.
func (r *Registry) RebuildIndex(ctx context.Context) error {
	start := time.Now()
	err := translateError(r.index.Rebuild(ctx))
	r.metrics.RecordRebuild(time.Since(start), err)
	r.logger.LogRebuild(ctx, time.Since(start), err)
	return err
}

// commit is a committed write plus the follow-up work it owes.
type commit struct {
	pi      pi.PI
	ver     int
	tip     cid.CID
	ts      time.Time
	effects []relation.SideEffect
}

// notify hands a committed write to the index and the relationship
// maintainer. Failures here never surface to the writer: the commit
// already happened, and the index tolerates at-least-once delivery, so
// logging and counting is the whole error policy.
func (r *Registry) notify(ctx context.Context, c commit) {
	if !r.async {
		r.recordIndex(ctx, c)
		r.relations.ApplyAll(ctx, c.effects)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		r.recordIndex(nctx, c)
	}()
	r.relations.Enqueue(c.effects)
}

func (r *Registry) recordIndex(ctx context.Context, c commit) {
	var err error
	if c.ver == 1 {
		err = r.index.RecordCreate(ctx, c.pi, c.tip, c.ts)
	} else {
		err = r.index.RecordUpdate(ctx, c.pi, c.ver, c.tip, c.ts)
	}
	if err != nil {
		r.logger.Error("index notification failed",
			"pi", c.pi, "ver", c.ver, "error", err)
	}
}

func validateCreate(req CreateRequest) error {
	for key, c := range req.Components {
		if key == "" {
			return &ValidationError{Field: "components", Reason: "empty component key"}
		}
		if _, err := cid.Parse(string(c)); err != nil {
			return &ValidationError{Field: "components." + key, Reason: err.Error()}
		}
	}
	if req.Parent != "" {
		if err := pi.Validate(string(req.Parent)); err != nil {
			return &ValidationError{Field: "parent_pi", Reason: err.Error()}
		}
	}
	for _, c := range req.Children {
		if err := pi.Validate(string(c)); err != nil {
			return &ValidationError{Field: "children_pi", Reason: err.Error()}
		}
	}
	return nil
}

// relationAdapter exposes the narrow registry surface the relationship
// maintainer needs. Side-effect appends set propagate=false so a
// back-reference edit never plans further side effects of its own.
type relationAdapter struct {
	r *Registry
}

func (a relationAdapter) Load(ctx context.Context, p pi.PI) (*manifest.Manifest, cid.CID, error) {
	return a.r.get(ctx, p)
}

func (a relationAdapter) AppendDelta(ctx context.Context, p pi.PI, expect cid.CID, d manifest.Delta) (cid.CID, error) {
	res, err := a.r.appendVersion(ctx, p, expect, d, false)
	if err != nil {
		return "", err
	}
	return res.CID, nil
}
