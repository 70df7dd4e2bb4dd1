// Package keyhash provides the default KeyHasher collaborator: it maps a
// namespaced (namespace, key) or (namespace, tag) pair to a backend id,
// guaranteeing the namespace-separation invariant of spec.md §3 (4), and
// a separate content-insensitive hash used only for filesystem sharding.
package keyhash

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// tagMarker is inserted between namespace and tag name. Keys, tags and
// namespaces are all validated to exclude control characters (including
// NUL) before reaching here, so a well-formed item id (namespace+key,
// containing no NUL byte) can never equal a tag id (which always
// contains this NUL-delimited marker) — spec.md §6's "Redis wire format"
// disjointness guarantee, generalised to every backend.
const tagMarker = "\x00tags\x00"

// Default is the default KeyHasher: item ids are simply "namespace+key"
// and tag ids are "namespace\x00tags\x00tag", exactly spec.md §6's Redis
// wire format. No cryptographic hashing happens here — the character-set
// restriction on keys/tags/namespaces (tagpool.ValidateKey) is what makes
// this disjoint and collision-free, not a hash.
type Default struct{}

// ItemID returns the namespaced backend id for a user key.
func (Default) ItemID(namespace, key string) string {
	return namespace + key
}

// TagID returns the namespaced backend id for a tag name.
func (Default) TagID(namespace, tag string) string {
	return namespace + tagMarker + tag
}

// Shard returns a fast, non-cryptographic, content-insensitive 64-bit
// hash of id, used only by the filesystem backend for directory sharding
// and symlink naming (spec.md §4.2) — never as the backend id itself.
func Shard(id string) uint64 {
	return xxhash.Sum64String(id)
}

// ShardHex returns a deterministic hex string derived from id, long
// enough (32 chars) that its first 4 characters ("aa"+"bb") serve as a
// two-level directory shard and the remainder as a collision-resistant
// file name tail (spec.md §4.2: "hash_tail is the remainder, >= 20
// chars"). Two distinct ids practically never produce the same
// ShardHex, since it folds two independent 64-bit hashes of id together.
func ShardHex(id string) string {
	head := hex16(xxhash.Sum64String(id))
	tail := hex16(xxhash.Sum64String(id + "\x01"))
	return head + tail
}

func hex16(v uint64) string {
	s := strconv.FormatUint(v, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
