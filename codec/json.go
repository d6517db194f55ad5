package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// encoding/json sorts map keys, so output is canonical for the document
// shapes Arke persists (manifests, log entries, snapshot chunks).
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
//
// Both built-in codecs produce identical bytes for Arke's document
// shapes, so switching between them does not change CIDs. Third-party
// codecs without that property would.
var Default Codec = GoJSON{}
