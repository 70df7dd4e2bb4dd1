package marshal

import (
	"encoding/json"
	"reflect"
)

// JSONCodec implements Codec using JSON encoding, adapted from the
// teacher's serializer.JSONSerializer: scalars are stored bare, complex
// values are wrapped in an Envelope carrying their type name.
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

// Marshal converts v to JSON bytes, wrapping complex values in an Envelope.
func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return json.Marshal(nil)
	}

	switch v.(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, bool:
		return json.Marshal(v)
	}

	return json.Marshal(Envelope{Type: reflect.TypeOf(v).String(), Value: v})
}

// Unmarshal converts JSON bytes back to a Go value.
func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	type rawEnvelope struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}

	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type != "" {
		return json.Unmarshal(env.Value, v)
	}
	return json.Unmarshal(data, v)
}

// Name returns "json".
func (c *JSONCodec) Name() string { return "json" }
