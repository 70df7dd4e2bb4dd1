package tagpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kodecache/tagpool/internal/keyhash"
	"github.com/kodecache/tagpool/marshal"
)

// clearer is an optional capability a BackendDriver may implement to
// support Pool.Clear (a full namespace wipe). Neither spec.md's four
// backend hooks nor BackendDriver name ids/tags broad enough to express
// "everything", so it is a separate, optional interface.
type clearer interface {
	DoClear(ctx context.Context) error
}

// PoolImpl is the shared tag-aware pool of spec.md §4.1: it owns the
// deferred write buffer, computes tag diffs and TTL bins, and delegates
// actual persistence to a BackendDriver.
type PoolImpl struct {
	backend    BackendDriver
	marshaller Marshaller
	hasher     KeyHasher
	namespace  string
	defaultTTL time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	deferred map[string]*Item // keyed by user key

	counters counters
}

var _ TaggablePool = (*PoolImpl)(nil)
var _ Observable = (*PoolImpl)(nil)

// Option configures a PoolImpl at construction time.
type Option func(*PoolImpl)

// WithMarshaller overrides the default JSON marshaller.
func WithMarshaller(m Marshaller) Option {
	return func(p *PoolImpl) { p.marshaller = m }
}

// WithKeyHasher overrides the default namespace-concatenation key hasher.
func WithKeyHasher(h KeyHasher) Option {
	return func(p *PoolImpl) { p.hasher = h }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *PoolImpl) { p.logger = l }
}

// New creates a tag-aware pool over backend using cfg, applying opts.
// cfg.Namespace, if set, is validated the same way a key or tag is
// (spec.md §6): it is appended as a raw prefix to every id the pool
// hashes, so it must be free of the same reserved characters.
func New(backend BackendDriver, cfg Config, opts ...Option) (*PoolImpl, error) {
	if cfg.Namespace != "" {
		if err := ValidateKey(cfg.Namespace); err != nil {
			return nil, err
		}
	}

	p := &PoolImpl{
		backend:    backend,
		marshaller: marshal.NewJSON(),
		hasher:     keyhash.Default{},
		namespace:  cfg.Namespace,
		defaultTTL: cfg.DefaultLifetime,
		logger:     slog.Default(),
		deferred:   make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stats returns a snapshot of the pool's operation counters.
func (p *PoolImpl) Stats() Stats { return p.counters.snapshot() }

func (p *PoolImpl) itemID(key string) string { return p.hasher.ItemID(p.namespace, key) }
func (p *PoolImpl) tagID(tag string) string  { return p.hasher.TagID(p.namespace, tag) }

// GetItem returns the item stored under key, or a miss shell.
//
// Open Question (spec.md §9): whether GetItem should commit pending
// writes unconditionally or only when key is buffered. This pool commits
// unconditionally whenever the buffer is non-empty — the "safer,
// consistent choice" spec.md names — so a writer always observes its own
// writes (spec.md §5 "Ordering guarantees").
func (p *PoolImpl) GetItem(ctx context.Context, key string) (*Item, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	p.mu.Lock()
	hasPending := len(p.deferred) > 0
	p.mu.Unlock()
	if hasPending {
		if _, err := p.Commit(ctx); err != nil {
			p.logger.Warn("tagpool: commit before get failed", "error", err)
		}
	}

	id := p.itemID(key)
	results, err := p.backend.DoFetch(ctx, []string{id})
	if err != nil {
		p.logger.Warn("tagpool: fetch failed, reporting miss", "key", key, "error", err)
		p.counters.recordMiss()
		return NewItem(key), nil
	}

	for _, r := range results {
		if r.ID != id {
			continue
		}
		if r.Err != nil {
			p.logger.Warn("tagpool: corrupt or undecodable record, reporting miss", "key", key, "error", r.Err)
			p.counters.recordMiss()
			return NewItem(key), nil
		}
		return p.hydrateHit(key, r.Record)
	}

	p.counters.recordMiss()
	return NewItem(key), nil
}

func (p *PoolImpl) hydrateHit(key string, rec Record) (*Item, error) {
	value, err := p.marshaller.Unmarshal(rec.Value)
	if err != nil {
		p.logger.Warn("tagpool: codec failure on fetch, reporting miss", "key", key, "error", err)
		p.counters.recordMiss()
		return NewItem(key), nil
	}
	it := NewItem(key)
	it.value = value
	it.tags = sliceToSet(rec.Tags)
	it.prevTags = sliceToSet(rec.Tags)
	it.isHit = true
	p.counters.recordHit()
	return it, nil
}

// GetItems returns a lazy iterator pairing each input key with its item.
// Hits are emitted first, in the order the backend streamed them; keys
// absent from the fetch stream then follow as misses, in input order
// (spec.md §4.1, matching the upstream Symfony getItems/generateItems
// behaviour this is modeled on).
func (p *PoolImpl) GetItems(ctx context.Context, keys []string) (*ItemIterator, error) {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	hasPending := len(p.deferred) > 0
	p.mu.Unlock()
	if hasPending {
		if _, err := p.Commit(ctx); err != nil {
			p.logger.Warn("tagpool: commit before get failed", "error", err)
		}
	}

	if len(keys) == 0 {
		return &ItemIterator{}, nil
	}

	ids := make([]string, len(keys))
	idToKey := make(map[string]string, len(keys))
	for i, k := range keys {
		id := p.itemID(k)
		ids[i] = id
		idToKey[id] = k
	}

	results, err := p.backend.DoFetch(ctx, ids)
	if err != nil {
		p.logger.Warn("tagpool: bulk fetch failed, reporting all miss", "error", err)
		results = nil
	}

	hit := make(map[string]bool, len(keys))
	ordered := make([]*Item, 0, len(keys))
	for _, r := range results {
		key, ok := idToKey[r.ID]
		if !ok || r.Err != nil {
			continue
		}
		it, _ := p.hydrateHit(key, r.Record)
		ordered = append(ordered, it)
		hit[key] = true
	}

	for _, k := range keys {
		if hit[k] {
			continue
		}
		p.counters.recordMiss()
		ordered = append(ordered, NewItem(k))
	}
	return &ItemIterator{items: ordered}, nil
}

// HasItem reports whether key currently resolves to a hit.
func (p *PoolImpl) HasItem(ctx context.Context, key string) (bool, error) {
	it, err := p.GetItem(ctx, key)
	if err != nil {
		return false, err
	}
	return it.IsHit(), nil
}

// Save buffers item and commits immediately.
func (p *PoolImpl) Save(ctx context.Context, item *Item) error {
	if err := p.SaveDeferred(ctx, item); err != nil {
		return err
	}
	_, err := p.Commit(ctx)
	return err
}

// SaveDeferred buffers item under its key without committing.
func (p *PoolImpl) SaveDeferred(ctx context.Context, item *Item) error {
	if err := ValidateKey(item.key); err != nil {
		return err
	}
	for t := range item.tags {
		if err := ValidateKey(t); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.deferred[item.key] = item
	p.mu.Unlock()
	return nil
}

// DeleteItem removes a single key.
func (p *PoolImpl) DeleteItem(ctx context.Context, key string) error {
	return p.DeleteItems(ctx, []string{key})
}

// DeleteItems removes keys: drops buffered entries, learns current tag
// memberships from the backend, deletes the records and their tag
// relations, retrying any opaque bulk failure per-item (spec.md §4.1).
// Returns nil only if every id was confirmed deleted.
func (p *PoolImpl) DeleteItems(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}

	p.mu.Lock()
	for _, k := range keys {
		delete(p.deferred, k)
	}
	p.mu.Unlock()

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = p.itemID(k)
	}

	results, err := p.backend.DoFetch(ctx, ids)
	if err != nil {
		p.logger.Warn("tagpool: fetch before delete failed, deleting blind", "error", err)
	}

	tagData := make(map[string][]string)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, tag := range r.Record.Tags {
			tid := p.tagID(tag)
			tagData[tid] = append(tagData[tid], r.ID)
		}
	}

	failedIDs := make(map[string]struct{})

	failed, deleteErr := p.backend.DoDelete(ctx, ids)
	switch {
	case deleteErr != nil && len(ids) > 1:
		// Opaque failure on a multi-id batch: retry every id individually
		// rather than failing the whole batch (spec.md §4.1).
		p.logger.Warn("tagpool: bulk delete failed opaquely, retrying per item", "batch_size", len(ids), "error", deleteErr)
		for _, id := range ids {
			idFailed, err := p.backend.DoDelete(ctx, []string{id})
			if err != nil || len(idFailed) > 0 {
				failedIDs[id] = struct{}{}
				p.logger.Error("tagpool: per-item delete retry failed", "id", id, "error", err)
			}
		}
	case deleteErr != nil:
		p.logger.Error("tagpool: single-item delete failed fatally", "id", ids[0], "error", deleteErr)
		failedIDs[ids[0]] = struct{}{}
	default:
		for _, id := range failed {
			failedIDs[id] = struct{}{}
			p.logger.Warn("tagpool: backend reported delete failure", "id", id)
		}
	}

	if err := p.backend.DoDeleteTagRelations(ctx, tagData); err != nil {
		p.logger.Warn("tagpool: tag relation cleanup failed", "error", err)
	}

	if len(failedIDs) > 0 {
		p.counters.recordError()
		return ErrBackendFatal("delete", fmt.Errorf("%d of %d ids failed to delete", len(failedIDs), len(ids)))
	}
	p.counters.recordDelete()
	return nil
}

// Clear empties the deferred buffer and calls the backend's DoClear, if
// the backend supports a full flush. DoClear is not scoped to the pool's
// namespace: it wipes everything the backend stores.
func (p *PoolImpl) Clear(ctx context.Context) error {
	c, ok := p.backend.(clearer)
	if !ok {
		return ErrBackendFatal("clear", errUnsupported)
	}
	p.mu.Lock()
	p.deferred = make(map[string]*Item)
	p.mu.Unlock()
	return c.DoClear(ctx)
}

// InvalidateTags deduplicates tags, maps each to a namespaced tag id, and
// delegates the sweep to the backend (spec.md §4.1).
func (p *PoolImpl) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		if err := ValidateKey(t); err != nil {
			return err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		ids = append(ids, p.tagID(t))
	}

	err := p.backend.DoInvalidate(ctx, ids)
	if err != nil {
		p.counters.recordError()
		return ErrBackendFatal("invalidate", err)
	}
	p.counters.recordInvalidate()
	return nil
}

// Teardown flushes any pending deferred writes, best-effort, and ignores
// the resulting error (spec.md §4.1 "__teardown").
func (p *PoolImpl) Teardown(ctx context.Context) {
	p.mu.Lock()
	hasPending := len(p.deferred) > 0
	p.mu.Unlock()
	if hasPending {
		_, _ = p.Commit(ctx)
	}
}

