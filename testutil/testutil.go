// Package testutil provides testing utilities for the registry.
//
// This package is intended for use in tests and benchmarks only. It
// provides a seeded thread-safe random source, content and identifier
// fixtures, and a manual clock for deterministic history.
package testutil

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/pi"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	r.rand.Read(b)
	return b
}

// CID returns the content address of a fresh random payload.
func (r *RNG) CID() cid.CID {
	return cid.Sum(r.Bytes(32))
}

// CIDs returns n distinct random content addresses.
func (r *RNG) CIDs(n int) []cid.CID {
	out := make([]cid.CID, n)
	for i := range out {
		out[i] = r.CID()
	}
	return out
}

// SeqPI returns a syntactically valid PI that sorts by n: SeqPI(i) <
// SeqPI(j) iff i < j. Tests that depend on enumeration order use these
// instead of freshly generated ULIDs.
func SeqPI(n int) pi.PI {
	return pi.PI(fmt.Sprintf("0%025d", n))
}

// Clock is a manual time source for deterministic timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current clock time. Pass as func() time.Time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
