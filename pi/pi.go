// Package pi generates and validates persistent identifiers.
//
// A PI is a 26-character ULID in Crockford base32. ULIDs embed a
// millisecond timestamp in their high bits, so lexicographic order of
// PIs tracks creation order. That property is load-bearing: the index
// engine sorts its snapshots by PI to get a stable newest-first
// enumeration without a separate timestamp column.
package pi

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Length is the fixed length of a PI string.
const Length = 26

// alphabet is Crockford base32 (no I, L, O, U).
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// PI is a persistent entity identifier.
type PI string

// ErrInvalid is the sentinel wrapped by all PI validation failures.
var ErrInvalid = fmt.Errorf("invalid PI")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New generates a fresh PI. Generation is monotonic within the process:
// two PIs created in sequence always compare in creation order, even
// within the same millisecond.
func New() PI {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return PI(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

// Parse validates s and returns it as a PI.
func Parse(s string) (PI, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	return PI(s), nil
}

// Validate reports whether s matches ^[0-9A-HJKMNP-TV-Z]{26}$.
func Validate(s string) error {
	if len(s) != Length {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalid, len(s), Length)
	}
	for i := 0; i < len(s); i++ {
		if !validChar(s[i]) {
			return fmt.Errorf("%w: character %q at position %d", ErrInvalid, s[i], i)
		}
	}
	// The first character of a 26-char ULID encodes the top 3 bits of a
	// 48-bit timestamp; anything above '7' would overflow 128 bits.
	if s[0] > '7' {
		return fmt.Errorf("%w: leading character %q out of range", ErrInvalid, s[0])
	}
	return nil
}

func validChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'H':
		return true
	case c == 'J' || c == 'K' || c == 'M' || c == 'N':
		return true
	case c >= 'P' && c <= 'T':
		return true
	case c >= 'V' && c <= 'Z':
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (p PI) String() string { return string(p) }

// Shard returns the two-level shard prefix derived from the first two
// characters, e.g. "0/1". Substrates use it to bound directory and
// partition fan-out.
func (p PI) Shard() string {
	if len(p) < 2 {
		return "_/_"
	}
	return string(p[0]) + "/" + string(p[1])
}

// Time returns the creation timestamp embedded in the PI.
func (p PI) Time() (time.Time, error) {
	id, err := ulid.ParseStrict(string(p))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return ulid.Time(id.Time()).UTC(), nil
}
