// Package manifest defines the immutable per-entity version record and
// the chain that links versions together.
//
// A manifest is never mutated after it is written; its CID is a pure
// function of its canonical bytes. Each version links to its
// predecessor through Prev, so the chain from any tip terminates at
// ver=1 by construction: Prev always names a manifest written strictly
// before the current one, which rules out cycles.
package manifest

import (
	"fmt"
	"slices"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/pi"
)

// TimeFormat is the timestamp layout persisted in manifests.
const TimeFormat = time.RFC3339Nano

// Manifest is one immutable version of an entity.
type Manifest struct {
	PI         pi.PI              `json:"pi"`
	Ver        int                `json:"ver"`
	TS         string             `json:"ts"`
	Prev       cid.CID            `json:"prev,omitempty"`
	Components map[string]cid.CID `json:"components,omitempty"`
	ChildrenPI []pi.PI            `json:"children_pi,omitempty"`
	ParentPI   pi.PI              `json:"parent_pi,omitempty"`
	Note       string             `json:"note,omitempty"`
}

// Delta is a partial update against an existing manifest state.
// Component keys present in the delta overwrite; absent keys are
// preserved. Children add/remove are set operations: adding a member
// twice or removing a non-member is a no-op.
type Delta struct {
	Components     map[string]cid.CID
	ChildrenAdd    []pi.PI
	ChildrenRemove []pi.PI
	Parent         *pi.PI  // nil leaves the parent unchanged; *"" clears it
	Note           *string // nil leaves the note unchanged
}

// Empty reports whether applying d would change nothing.
func (d Delta) Empty() bool {
	return len(d.Components) == 0 &&
		len(d.ChildrenAdd) == 0 &&
		len(d.ChildrenRemove) == 0 &&
		d.Parent == nil &&
		d.Note == nil
}

// First builds the ver=1 manifest for a new entity.
func First(p pi.PI, ts time.Time, d Delta) *Manifest {
	m := &Manifest{
		PI:  p,
		Ver: 1,
		TS:  ts.UTC().Format(TimeFormat),
	}
	m.apply(d)
	return m
}

// Next builds the successor version: prior state merged with the delta,
// Ver incremented, Prev pointing at the predecessor's address.
func (m *Manifest) Next(prevCID cid.CID, ts time.Time, d Delta) *Manifest {
	next := &Manifest{
		PI:         m.PI,
		Ver:        m.Ver + 1,
		TS:         ts.UTC().Format(TimeFormat),
		Prev:       prevCID,
		Components: cloneComponents(m.Components),
		ChildrenPI: slices.Clone(m.ChildrenPI),
		ParentPI:   m.ParentPI,
		Note:       m.Note,
	}
	next.apply(d)
	return next
}

func (m *Manifest) apply(d Delta) {
	if len(d.Components) > 0 {
		if m.Components == nil {
			m.Components = make(map[string]cid.CID, len(d.Components))
		}
		for k, v := range d.Components {
			m.Components[k] = v
		}
	}

	if len(d.ChildrenAdd) > 0 || len(d.ChildrenRemove) > 0 {
		set := make(map[pi.PI]struct{}, len(m.ChildrenPI)+len(d.ChildrenAdd))
		for _, c := range m.ChildrenPI {
			set[c] = struct{}{}
		}
		for _, c := range d.ChildrenAdd {
			set[c] = struct{}{}
		}
		for _, c := range d.ChildrenRemove {
			delete(set, c)
		}
		m.ChildrenPI = sortedChildren(set)
	}

	if d.Parent != nil {
		m.ParentPI = *d.Parent
	}
	if d.Note != nil {
		m.Note = *d.Note
	}
}

// sortedChildren flattens the set into the ordered sequence retained
// for deterministic serialization. Set semantics, stable bytes.
func sortedChildren(set map[pi.PI]struct{}) []pi.PI {
	if len(set) == 0 {
		return nil
	}
	out := make([]pi.PI, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// HasChild reports whether c is a member of ChildrenPI.
func (m *Manifest) HasChild(c pi.PI) bool {
	_, ok := slices.BinarySearch(m.ChildrenPI, c)
	return ok
}

// Time parses the manifest timestamp.
func (m *Manifest) Time() (time.Time, error) {
	return time.Parse(TimeFormat, m.TS)
}

// Validate checks the structural invariants of a single manifest.
func (m *Manifest) Validate() error {
	if err := pi.Validate(string(m.PI)); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if m.Ver < 1 {
		return fmt.Errorf("manifest: ver %d, want >= 1", m.Ver)
	}
	if (m.Ver == 1) != (m.Prev == "") {
		return fmt.Errorf("manifest: ver %d with prev %q", m.Ver, m.Prev)
	}
	if !slices.IsSorted(m.ChildrenPI) {
		return fmt.Errorf("manifest: children_pi not sorted")
	}
	if _, err := m.Time(); err != nil {
		return fmt.Errorf("manifest: bad ts: %w", err)
	}
	return nil
}

func cloneComponents(src map[string]cid.CID) map[string]cid.CID {
	if src == nil {
		return nil
	}
	dst := make(map[string]cid.CID, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
