// Package codec centralizes document encoding.
//
// Arke content-addresses documents by their encoded bytes, so the codec
// is a compatibility boundary twice over: changing codecs breaks both
// decoding of persisted documents and the CIDs computed for new ones.
// Both built-in codecs emit canonical JSON (struct fields in declaration
// order, map keys sorted), which is what makes an encode a pure function
// of its input.
package codec

import "fmt"

// Codec encodes/decodes documents.
// Implementations must be safe for concurrent use and deterministic:
// equal inputs must produce byte-identical output.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// Persisted structures that record their codec (snapshot chunks, the
// index pointer) use this to select a decoder on load.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
