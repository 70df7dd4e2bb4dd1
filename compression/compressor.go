// Package compression provides pluggable byte-level compression for the
// marshal package's CompressedCodec, so a marshalled value can be shrunk
// before it ever reaches a BackendDriver.
package compression

// Compressor shrinks and restores arbitrary byte slices. Decompress(Compress(b))
// must round-trip b exactly. Implementations are shared across goroutines
// committing concurrently, so they must not hold mutable state between calls.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}
