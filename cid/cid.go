// Package cid computes content addresses.
//
// A CID is a pure function of a document's bytes: a multibase 'b'
// prefix followed by the lowercase, unpadded base32 encoding of
// [version, codec, 32-byte BLAKE3 digest]. Identical bytes always
// produce identical CIDs, which is what lets the manifest chain detect
// accidental duplicate writes for free.
package cid

import (
	"encoding/base32"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// Version is the CID layout version byte.
	Version = 0x01

	// CodecRaw marks an opaque byte payload.
	CodecRaw = 0x55
	// CodecJSON marks a canonical JSON document.
	CodecJSON = 0x0e

	// digestSize is the BLAKE3-256 output length.
	digestSize = 32

	// encodedLen is the length of a CID string: 'b' + base32(2+32 bytes).
	encodedLen = 1 + (2+digestSize)*8/5 + 1
)

// ErrInvalid is the sentinel wrapped by all CID parse failures.
var ErrInvalid = fmt.Errorf("invalid CID")

// multibase 'b' means lowercase base32 without padding.
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CID is a content address in its canonical string form.
type CID string

// Sum computes the CID of an opaque byte payload.
func Sum(data []byte) CID {
	return sum(CodecRaw, data)
}

// SumJSON computes the CID of a canonical JSON document.
func SumJSON(data []byte) CID {
	return sum(CodecJSON, data)
}

func sum(codec byte, data []byte) CID {
	digest := blake3.Sum256(data)

	raw := make([]byte, 2+digestSize)
	raw[0] = Version
	raw[1] = codec
	copy(raw[2:], digest[:])

	buf := make([]byte, 1, encodedLen)
	buf[0] = 'b'
	buf = append(buf, encoding.EncodeToString(raw)...)
	return CID(toLower(buf))
}

// Parse validates s and returns it as a CID.
func Parse(s string) (CID, error) {
	if len(s) < 2 || s[0] != 'b' {
		return "", fmt.Errorf("%w: missing multibase prefix", ErrInvalid)
	}
	raw, err := encoding.DecodeString(toUpper(s[1:]))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(raw) != 2+digestSize {
		return "", fmt.Errorf("%w: payload length %d", ErrInvalid, len(raw))
	}
	if raw[0] != Version {
		return "", fmt.Errorf("%w: unsupported version 0x%02x", ErrInvalid, raw[0])
	}
	if raw[1] != CodecRaw && raw[1] != CodecJSON {
		return "", fmt.Errorf("%w: unsupported codec 0x%02x", ErrInvalid, raw[1])
	}
	return CID(s), nil
}

// String implements fmt.Stringer.
func (c CID) String() string { return string(c) }

// Shard returns a two-character blob shard derived from the tail of the
// address. The digest tail is uniformly distributed, so sharding on it
// spreads blobs evenly across directories or key prefixes.
func (c CID) Shard() string {
	if len(c) < 2 {
		return "__"
	}
	return string(c[len(c)-2:])
}

func toLower(b []byte) string {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
