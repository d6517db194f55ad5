// Package relation keeps parent/child back-references consistent
// across independent entities.
//
// When an entity commits with a relationship change, the other side of
// the edge (the parent's children_pi, or the child's parent_pi) lives
// in a different entity with its own manifest chain and its own tip.
// The maintainer issues that second edit as an independent
// version-append with its own CAS cycle; the two entities are never
// committed atomically as a pair. A failure on the second side is a
// distinct, recoverable condition: logged and counted, never rolled
// back, and not retried here (reconciliation is an out-of-band
// concern).
package relation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/manifest"
	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/resource"
	"github.com/Arke-Institute/arke/tip"
)

// Op identifies the kind of back-reference edit.
type Op string

const (
	OpAddChild    Op = "add_child"    // add Subject to Target's children_pi
	OpRemoveChild Op = "remove_child" // remove Subject from Target's children_pi
	OpSetParent   Op = "set_parent"   // set Target's parent_pi to Subject
	OpClearParent Op = "clear_parent" // clear Target's parent_pi (if it names Subject)
)

// Status is the lifecycle of one side effect.
type Status string

const (
	StatusPending Status = "pending"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// SideEffect is one planned back-reference edit.
type SideEffect struct {
	Op      Op
	Target  pi.PI // entity receiving the edit
	Subject pi.PI // entity on the other end of the edge

	// ExpectTip optionally pins the edit to a known tip of Target.
	ExpectTip cid.CID
}

// Change describes the relationship portion of a committed entity
// write, from which the other-side edits are planned.
type Change struct {
	PI              pi.PI
	ParentSet       pi.PI // new parent, if the write set or changed it
	ParentCleared   pi.PI // old parent, if the write detached it
	ChildrenAdded   []pi.PI
	ChildrenRemoved []pi.PI
}

// Plan derives the side effects a committed change requires.
func Plan(ch Change) []SideEffect {
	var effects []SideEffect
	if ch.ParentSet != "" {
		effects = append(effects, SideEffect{Op: OpAddChild, Target: ch.ParentSet, Subject: ch.PI})
	}
	if ch.ParentCleared != "" {
		effects = append(effects, SideEffect{Op: OpRemoveChild, Target: ch.ParentCleared, Subject: ch.PI})
	}
	for _, c := range ch.ChildrenAdded {
		effects = append(effects, SideEffect{Op: OpSetParent, Target: c, Subject: ch.PI})
	}
	for _, c := range ch.ChildrenRemoved {
		effects = append(effects, SideEffect{Op: OpClearParent, Target: c, Subject: ch.PI})
	}
	return effects
}

// Registry is the slice of the entity registry the maintainer needs:
// resolve current state, append one version.
type Registry interface {
	Load(ctx context.Context, p pi.PI) (*manifest.Manifest, cid.CID, error)
	AppendDelta(ctx context.Context, p pi.PI, expect cid.CID, d manifest.Delta) (cid.CID, error)
}

// Options configures a Maintainer.
type Options struct {
	// Logger receives side-effect state transitions. nil discards.
	Logger *slog.Logger

	// Resource bounds concurrent side-effect appends.
	Resource *resource.Controller

	// Timeout bounds one asynchronous side-effect application.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// OnResult, if set, is invoked with the terminal status of every
	// side effect. The registry uses it for metrics.
	OnResult func(effect SideEffect, status Status, err error)
}

// DefaultTimeout bounds one asynchronous side-effect application.
const DefaultTimeout = 30 * time.Second

// Maintainer applies planned side effects, asynchronously by default.
type Maintainer struct {
	registry Registry
	logger   *slog.Logger
	rc       *resource.Controller
	timeout  time.Duration
	onResult func(SideEffect, Status, error)
	wg       sync.WaitGroup
}

// NewMaintainer creates a maintainer over the given registry.
func NewMaintainer(reg Registry, opts Options) *Maintainer {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Resource == nil {
		opts.Resource = resource.NewController(resource.Config{})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Maintainer{
		registry: reg,
		logger:   opts.Logger,
		rc:       opts.Resource,
		timeout:  opts.Timeout,
		onResult: opts.OnResult,
	}
}

// Enqueue schedules effects for asynchronous application. The caller's
// write has already committed; effects run detached from its context.
func (m *Maintainer) Enqueue(effects []SideEffect) {
	if len(effects) == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, effect := range effects {
			m.run(effect)
		}
	}()
}

// ApplyAll applies effects in order on the caller's goroutine. Used
// when the registry runs with synchronous notification.
func (m *Maintainer) ApplyAll(ctx context.Context, effects []SideEffect) {
	for _, effect := range effects {
		if err := m.Apply(ctx, effect); err != nil {
			m.finish(effect, StatusFailed, err)
		} else {
			m.finish(effect, StatusApplied, nil)
		}
	}
}

// Wait blocks until all enqueued side effects reach a terminal state.
func (m *Maintainer) Wait() {
	m.wg.Wait()
}

func (m *Maintainer) run(effect SideEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.rc.AcquireBackground(ctx); err != nil {
		m.finish(effect, StatusFailed, err)
		return
	}
	defer m.rc.ReleaseBackground()

	m.logger.Debug("side effect pending",
		"op", effect.Op, "target", effect.Target, "subject", effect.Subject)

	if err := m.Apply(ctx, effect); err != nil {
		m.finish(effect, StatusFailed, err)
		return
	}
	m.finish(effect, StatusApplied, nil)
}

func (m *Maintainer) finish(effect SideEffect, status Status, err error) {
	if status == StatusFailed {
		m.logger.Error("side effect failed",
			"op", effect.Op, "target", effect.Target, "subject", effect.Subject, "error", err)
	} else {
		m.logger.Debug("side effect applied",
			"op", effect.Op, "target", effect.Target, "subject", effect.Subject)
	}
	if m.onResult != nil {
		m.onResult(effect, status, err)
	}
}

// Apply performs one side effect synchronously: read the target's
// current state, decide whether the edit is still needed, and issue a
// single version-append pinned to the tip that was read. A lost CAS is
// a failure like any other; the caller (or an out-of-band reconciler)
// decides whether to replan.
func (m *Maintainer) Apply(ctx context.Context, effect SideEffect) error {
	mf, tipCID, err := m.registry.Load(ctx, effect.Target)
	if err != nil {
		return fmt.Errorf("relation: %s: load target %s: %w", effect.Op, effect.Target, err)
	}
	if effect.ExpectTip != "" && effect.ExpectTip != tipCID {
		return &tip.CASError{PI: effect.Target, Expected: effect.ExpectTip, Actual: tipCID}
	}

	delta, needed := m.plan(mf, effect)
	if !needed {
		// Already in the desired state; counts as applied.
		return nil
	}

	_, err = m.registry.AppendDelta(ctx, effect.Target, tipCID, delta)
	return err
}

// plan maps an effect onto a delta against the target's current state.
// needed=false means the state already holds.
func (m *Maintainer) plan(mf *manifest.Manifest, effect SideEffect) (manifest.Delta, bool) {
	switch effect.Op {
	case OpAddChild:
		if mf.HasChild(effect.Subject) {
			return manifest.Delta{}, false
		}
		return manifest.Delta{ChildrenAdd: []pi.PI{effect.Subject}}, true

	case OpRemoveChild:
		if !mf.HasChild(effect.Subject) {
			return manifest.Delta{}, false
		}
		return manifest.Delta{ChildrenRemove: []pi.PI{effect.Subject}}, true

	case OpSetParent:
		if mf.ParentPI == effect.Subject {
			return manifest.Delta{}, false
		}
		parent := effect.Subject
		return manifest.Delta{Parent: &parent}, true

	case OpClearParent:
		// Only detach if the parent link still names the subject; a
		// concurrent reparent must not be clobbered.
		if mf.ParentPI != effect.Subject {
			return manifest.Delta{}, false
		}
		var none pi.PI
		return manifest.Delta{Parent: &none}, true

	default:
		return manifest.Delta{}, false
	}
}

// LinkChild synchronously adds child to parent's children_pi,
// optionally pinned to a known parent tip.
func (m *Maintainer) LinkChild(ctx context.Context, parent, child pi.PI, expectParentTip cid.CID) error {
	return m.Apply(ctx, SideEffect{Op: OpAddChild, Target: parent, Subject: child, ExpectTip: expectParentTip})
}

// UnlinkChild synchronously removes child from parent's children_pi.
func (m *Maintainer) UnlinkChild(ctx context.Context, parent, child pi.PI) error {
	return m.Apply(ctx, SideEffect{Op: OpRemoveChild, Target: parent, Subject: child})
}
