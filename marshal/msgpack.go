package marshal

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec implements Codec using MessagePack, adapted from the
// teacher's serializer.MsgpackSerializer.
type MsgpackCodec struct{}

// NewMsgpackCodec creates a new msgpack codec.
func NewMsgpackCodec() *MsgpackCodec { return &MsgpackCodec{} }

// Marshal converts v to msgpack bytes, wrapping complex values in an Envelope.
func (c *MsgpackCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return msgpack.Marshal(nil)
	}

	switch v.(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, bool:
		return msgpack.Marshal(v)
	}

	return msgpack.Marshal(Envelope{Type: reflect.TypeOf(v).String(), Value: v})
}

// Unmarshal converts msgpack bytes back to a Go value.
func (c *MsgpackCodec) Unmarshal(data []byte, v any) error {
	type rawEnvelope struct {
		Type  string             `msgpack:"type"`
		Value msgpack.RawMessage `msgpack:"value"`
	}

	var env rawEnvelope
	if err := msgpack.Unmarshal(data, &env); err == nil && env.Type != "" {
		return msgpack.Unmarshal(env.Value, v)
	}
	return msgpack.Unmarshal(data, v)
}

// Name returns "msgpack".
func (c *MsgpackCodec) Name() string { return "msgpack" }
