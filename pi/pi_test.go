package pi

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatAndUniqueness(t *testing.T) {
	seen := make(map[PI]struct{})
	for i := 0; i < 1000; i++ {
		p := New()
		require.NoError(t, Validate(string(p)))
		require.NotContains(t, seen, p)
		seen[p] = struct{}{}
	}
}

func TestNew_MonotonicOrder(t *testing.T) {
	// Generated in sequence, PIs must compare in creation order even
	// within the same millisecond.
	pis := make([]PI, 500)
	for i := range pis {
		pis[i] = New()
	}
	require.True(t, sort.SliceIsSorted(pis, func(i, j int) bool {
		return pis[i] < pis[j]
	}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "01ARZ3NDEKTSV4RRFFQ69G5FAV", wantErr: false},
		{name: "valid all digits", input: "00000000000000000000000000", wantErr: false},
		{name: "too short", input: "01ARZ3NDEKTSV4RRFFQ69G5FA", wantErr: true},
		{name: "too long", input: "01ARZ3NDEKTSV4RRFFQ69G5FAVX", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "lowercase", input: "01arz3ndektsv4rrffq69g5fav", wantErr: true},
		{name: "excluded I", input: "01ARZ3NDEKTSV4RRFFQ69G5FAI", wantErr: true},
		{name: "excluded L", input: "01ARZ3NDEKTSV4RRFFQ69G5FAL", wantErr: true},
		{name: "excluded O", input: "01ARZ3NDEKTSV4RRFFQ69G5FAO", wantErr: true},
		{name: "excluded U", input: "01ARZ3NDEKTSV4RRFFQ69G5FAU", wantErr: true},
		{name: "leading char overflows timestamp", input: "81ARZ3NDEKTSV4RRFFQ69G5FAV", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrInvalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	assert.Equal(t, PI("01ARZ3NDEKTSV4RRFFQ69G5FAV"), p)

	_, err = Parse("not a pi")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestShard(t *testing.T) {
	p := PI("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.Equal(t, "0/1", p.Shard())
}

func TestTime(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Millisecond)
	p := New()
	after := time.Now().UTC()

	ts, err := p.Time()
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}
