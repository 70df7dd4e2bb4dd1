package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// DefaultCompression requests gzip's own balance of speed and ratio.
const DefaultCompression = gzip.DefaultCompression

// Gzip is the default Compressor, backed by the standard library's gzip
// writer/reader pair.
type Gzip struct {
	level int
}

// NewGzipCompressor builds a Gzip compressor at level, which must be
// DefaultCompression, gzip.NoCompression, gzip.BestSpeed,
// gzip.BestCompression, or a value in between.
func NewGzipCompressor(level int) *Gzip {
	return &Gzip{level: level}
}

var _ Compressor = (*Gzip)(nil)

// Compress gzips data at the configured level.
func (g *Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("compression: open gzip writer: %w", err)
	}

	_, writeErr := w.Write(data)
	closeErr := w.Close()
	switch {
	case writeErr != nil:
		return nil, fmt.Errorf("compression: gzip write: %w", writeErr)
	case closeErr != nil:
		return nil, fmt.Errorf("compression: gzip close: %w", closeErr)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. The level used to compress data need not
// match g's configured level — gzip streams are self-describing.
func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compression: open gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compression: gzip read: %w", err)
	}
	return out, nil
}
