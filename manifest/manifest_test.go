package manifest

import (
	"testing"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/pi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFirst(t *testing.T) {
	p := pi.New()
	desc := cid.Sum([]byte("description"))
	child := pi.New()
	parent := pi.New()
	note := "initial import"

	m := First(p, testTime, Delta{
		Components:  map[string]cid.CID{"description": desc},
		ChildrenAdd: []pi.PI{child},
		Parent:      &parent,
		Note:        &note,
	})

	require.NoError(t, m.Validate())
	assert.Equal(t, p, m.PI)
	assert.Equal(t, 1, m.Ver)
	assert.Empty(t, m.Prev)
	assert.Equal(t, desc, m.Components["description"])
	assert.Equal(t, []pi.PI{child}, m.ChildrenPI)
	assert.Equal(t, parent, m.ParentPI)
	assert.Equal(t, note, m.Note)

	ts, err := m.Time()
	require.NoError(t, err)
	assert.Equal(t, testTime, ts)
}

func TestNext_MergeSemantics(t *testing.T) {
	p := pi.New()
	descV1 := cid.Sum([]byte("desc v1"))
	descV2 := cid.Sum([]byte("desc v2"))
	ocr := cid.Sum([]byte("ocr"))

	m1 := First(p, testTime, Delta{
		Components: map[string]cid.CID{"description": descV1, "ocr": ocr},
	})
	prevCID := cid.Sum([]byte("m1 address"))

	m2 := m1.Next(prevCID, testTime.Add(time.Hour), Delta{
		Components: map[string]cid.CID{"description": descV2},
	})

	require.NoError(t, m2.Validate())
	assert.Equal(t, 2, m2.Ver)
	assert.Equal(t, prevCID, m2.Prev)

	// Present keys overwrite, absent keys are preserved.
	assert.Equal(t, descV2, m2.Components["description"])
	assert.Equal(t, ocr, m2.Components["ocr"])

	// The predecessor is untouched.
	assert.Equal(t, descV1, m1.Components["description"])
	assert.Equal(t, 1, m1.Ver)
}

func TestNext_ChildrenSetOps(t *testing.T) {
	p := pi.New()
	a, b, c := pi.PI("0000000000000000000000000A"), pi.PI("0000000000000000000000000B"), pi.PI("0000000000000000000000000C")

	m1 := First(p, testTime, Delta{ChildrenAdd: []pi.PI{b, a}})
	// Children come out sorted regardless of insertion order.
	require.Equal(t, []pi.PI{a, b}, m1.ChildrenPI)

	m2 := m1.Next("bprev", testTime, Delta{
		ChildrenAdd:    []pi.PI{c, a}, // a is already a member: no-op
		ChildrenRemove: []pi.PI{b},
	})
	require.Equal(t, []pi.PI{a, c}, m2.ChildrenPI)
	assert.True(t, m2.HasChild(a))
	assert.False(t, m2.HasChild(b))

	// Removing a non-member is a no-op.
	m3 := m2.Next("bprev2", testTime, Delta{ChildrenRemove: []pi.PI{b}, ChildrenAdd: []pi.PI{a}})
	require.Equal(t, []pi.PI{a, c}, m3.ChildrenPI)
}

func TestNext_ParentAndNote(t *testing.T) {
	p := pi.New()
	parent := pi.New()

	m1 := First(p, testTime, Delta{})
	assert.Empty(t, m1.ParentPI)

	m2 := m1.Next("b1", testTime, Delta{Parent: &parent})
	assert.Equal(t, parent, m2.ParentPI)

	// nil leaves the parent unchanged.
	note := "reprocessed"
	m3 := m2.Next("b2", testTime, Delta{Note: &note})
	assert.Equal(t, parent, m3.ParentPI)
	assert.Equal(t, note, m3.Note)

	// *"" clears.
	var none pi.PI
	m4 := m3.Next("b3", testTime, Delta{Parent: &none})
	assert.Empty(t, m4.ParentPI)
	assert.Equal(t, note, m4.Note)
}

func TestDelta_Empty(t *testing.T) {
	assert.True(t, Delta{}.Empty())

	var none pi.PI
	for _, d := range []Delta{
		{Components: map[string]cid.CID{"a": "b1"}},
		{ChildrenAdd: []pi.PI{pi.New()}},
		{ChildrenRemove: []pi.PI{pi.New()}},
		{Parent: &none},
		{Note: new(string)},
	} {
		assert.False(t, d.Empty())
	}
}

func TestValidate(t *testing.T) {
	p := pi.New()
	valid := First(p, testTime, Delta{})
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(m *Manifest)
	}{
		{name: "bad pi", mutate: func(m *Manifest) { m.PI = "nope" }},
		{name: "zero ver", mutate: func(m *Manifest) { m.Ver = 0 }},
		{name: "ver 1 with prev", mutate: func(m *Manifest) { m.Prev = "bsomething" }},
		{name: "ver 2 without prev", mutate: func(m *Manifest) { m.Ver = 2 }},
		{name: "unsorted children", mutate: func(m *Manifest) {
			m.ChildrenPI = []pi.PI{"0000000000000000000000000B", "0000000000000000000000000A"}
		}},
		{name: "bad timestamp", mutate: func(m *Manifest) { m.TS = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := *valid
			tt.mutate(&m)
			require.Error(t, m.Validate())
		})
	}
}
