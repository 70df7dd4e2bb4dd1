package tagpool

import (
	"context"
	"time"
)

// Pool is the public facade of a tag-aware cache pool (spec.md §6).
type Pool interface {
	GetItem(ctx context.Context, key string) (*Item, error)
	GetItems(ctx context.Context, keys []string) (*ItemIterator, error)
	HasItem(ctx context.Context, key string) (bool, error)
	DeleteItem(ctx context.Context, key string) error
	DeleteItems(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
	Save(ctx context.Context, item *Item) error
	SaveDeferred(ctx context.Context, item *Item) error
	Commit(ctx context.Context) (bool, error)
}

// TaggablePool extends Pool with bulk invalidation by tag.
type TaggablePool interface {
	Pool
	InvalidateTags(ctx context.Context, tags []string) error
}

// Observable is implemented by pools that expose operation counters.
type Observable interface {
	Stats() Stats
}

// Stats is a snapshot of pool-level operation counters.
type Stats struct {
	Hits         int64
	Misses       int64
	Saves        int64
	Deletes      int64
	Invalidates  int64
	Errors       int64
}

// Record is what a backend actually persists per item: the value plus the
// tag set currently attached to it. Tag-operation metadata (add/remove) is
// derived at commit time and passed alongside, never persisted (spec.md §3).
type Record struct {
	Value []byte
	Tags  []string
}

// FetchResult pairs a namespaced id with its decoded record, or an error
// for that one id (corruption, codec failure). The backend driver streams
// these; the pool decides how to turn a per-id error into a miss.
type FetchResult struct {
	ID     string
	Record Record
	Err    error
}

// TagOps is the sideband tag-delta passed to DoSave: for every id, the set
// of tag ids to add and remove as a result of this commit (spec.md §3,
// invariant 3; §9's "dynamic record shape" note).
type TagOps struct {
	Add    map[string][]string // tagID -> itemIDs to add
	Remove map[string][]string // tagID -> itemIDs to remove
}

// BackendDriver is the capability set a concrete storage backend
// (filesystem, Redis) exposes to the abstract pool (spec.md §2 item 2,
// §4.1). All methods may block on I/O and must tolerate being called with
// ids that do not exist.
type BackendDriver interface {
	// DoFetch streams (id, record) pairs for the ids that exist and are
	// still valid. Missing/expired/corrupt ids are simply absent from the
	// stream, never reported as a Go error, per spec.md §7.
	DoFetch(ctx context.Context, ids []string) ([]FetchResult, error)

	// DoSave persists records with the given TTL and applies the tag
	// deltas. Returns the ids that failed; a nil/empty slice means full
	// success. An error return is a backend-fatal failure (spec.md §4.1.1
	// step 4, §7).
	DoSave(ctx context.Context, records map[string]Record, ttl time.Duration, ops TagOps) (failed []string, err error)

	// DoDelete removes item records for the given ids, tolerant of
	// already-missing ids. Returns the ids that failed to delete; a
	// nil/empty slice means every id was removed (or already absent). An
	// error return is a backend-fatal failure, same as DoSave.
	DoDelete(ctx context.Context, ids []string) (failed []string, err error)

	// DoDeleteTagRelations removes the given (tag -> items) relation
	// entries. Best-effort: dangling references are tolerated by readers
	// (spec.md §3 invariant 2), so this never fails the caller.
	DoDeleteTagRelations(ctx context.Context, tagData map[string][]string) error

	// DoInvalidate sweeps every item referenced by tagIDs and removes
	// both the items and the tag relations, per the rename-then-sweep
	// protocol of spec.md §4.2/§4.3.
	DoInvalidate(ctx context.Context, tagIDs []string) error
}

// Marshaller is the marshalling collaborator (spec.md §1's "external
// collaborator"): it compresses/serialises user values. The core only
// needs the two batch operations below — a partial-failure-tolerant
// encode and a single-value decode.
type Marshaller interface {
	// Marshal encodes every value in values, returning the encoded bytes
	// keyed by the same key, plus the keys that could not be encoded.
	Marshal(values map[string]any) (encoded map[string][]byte, failed []string, err error)

	// Unmarshal decodes a single previously-marshalled value.
	Unmarshal(data []byte) (any, error)
}

// KeyHasher is the key-hashing collaborator (spec.md §1): it maps a
// user-visible key or tag name, scoped to a namespace, to a namespaced
// backend identifier (spec.md §3 invariant 4).
type KeyHasher interface {
	ItemID(namespace, key string) string
	TagID(namespace, tag string) string
}
