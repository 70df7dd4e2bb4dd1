package marshal

import "github.com/kodecache/tagpool/compression"

// CompressedCodec wraps another Codec and compresses its output,
// adapted from the teacher's serializer.CompressedSerializer.
type CompressedCodec struct {
	inner      Codec
	compressor compression.Compressor
}

// NewCompressedCodec creates a new CompressedCodec.
func NewCompressedCodec(inner Codec, compressor compression.Compressor) *CompressedCodec {
	return &CompressedCodec{inner: inner, compressor: compressor}
}

// Marshal marshals v with the inner codec, then compresses the result.
func (c *CompressedCodec) Marshal(v any) ([]byte, error) {
	data, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.compressor.Compress(data)
}

// Unmarshal decompresses data, then unmarshals it with the inner codec.
func (c *CompressedCodec) Unmarshal(data []byte, v any) error {
	uncompressed, err := c.compressor.Decompress(data)
	if err != nil {
		return err
	}
	return c.inner.Unmarshal(uncompressed, v)
}

// Name returns the inner codec's name.
func (c *CompressedCodec) Name() string { return c.inner.Name() }
