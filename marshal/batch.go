package marshal

import "github.com/kodecache/tagpool/compression"

// Batch adapts a per-value Codec to the pool's two-operation Marshaller
// contract (spec.md §1): a batch encode that tolerates per-value failure,
// and a single-value decode. It has no dependency on the root tagpool
// package — it simply has the right method shapes to satisfy
// tagpool.Marshaller by structural typing.
type Batch struct {
	codec Codec
}

// NewJSON returns the default marshaller: JSON encoding, envelope-wrapped
// for non-scalar values.
func NewJSON() *Batch { return &Batch{codec: NewJSONCodec()} }

// NewMsgpack returns a MessagePack-backed marshaller.
func NewMsgpack() *Batch { return &Batch{codec: NewMsgpackCodec()} }

// NewCompressed wraps a marshaller's codec with compression. The
// returned Batch uses the same encode/decode semantics as inner, just
// with compressed bytes on the wire.
func NewCompressed(inner *Batch, compressor compression.Compressor) *Batch {
	return &Batch{codec: NewCompressedCodec(inner.codec, compressor)}
}

// Marshal encodes every value in values, returning the successfully
// encoded bytes by id and the ids that failed to encode. A per-value
// codec failure never aborts the whole batch (spec.md §7: "codec
// failure ... Marshal failure returns those ids as failed from commit").
func (b *Batch) Marshal(values map[string]any) (map[string][]byte, []string, error) {
	encoded := make(map[string][]byte, len(values))
	var failed []string
	for id, v := range values {
		data, err := b.codec.Marshal(v)
		if err != nil {
			failed = append(failed, id)
			continue
		}
		encoded[id] = data
	}
	return encoded, failed, nil
}

// Unmarshal decodes a single previously-marshalled value.
func (b *Batch) Unmarshal(data []byte) (any, error) {
	var v any
	if err := b.codec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Name returns the underlying codec's name.
func (b *Batch) Name() string { return b.codec.Name() }
