package tagpool

import (
	"context"
	"time"
)

// pendingItem carries everything the commit protocol has already
// computed about one buffered item, so the TTL-binning and retry passes
// never need to re-derive it.
type pendingItem struct {
	key        string
	id         string
	tags       []string
	addTags    []string
	removeTags []string
	ttl        time.Duration
	expired    bool
}

// Commit drains the deferred buffer to the backend, following the
// protocol of spec.md §4.1.1: snapshot-and-clear, compute per-item tag
// diffs and TTL bins, bulk-delete anything already expired, bulk-save
// each TTL bin, then retry any failures individually. Returns true iff no
// failure was recorded. The only error it returns is a marshaller failure
// for the whole batch: every DoSave error, backend-fatal ones included, is
// logged and its ids are counted as failed.
func (p *PoolImpl) Commit(ctx context.Context) (bool, error) {
	p.mu.Lock()
	snapshot := p.deferred
	p.deferred = make(map[string]*Item)
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return true, nil
	}

	values := make(map[string]any, len(snapshot))
	pending := make(map[string]*pendingItem, len(snapshot))
	now := time.Now()

	for key, item := range snapshot {
		id := p.itemID(key)
		adds, removes := p.tagDiff(item)

		pi := &pendingItem{
			key:        key,
			id:         id,
			tags:       item.Tags(),
			addTags:    adds,
			removeTags: removes,
		}

		switch {
		case !item.expiresAt.IsZero() && !item.expiresAt.After(now):
			pi.expired = true
		case !item.expiresAt.IsZero():
			// Rounded up to whole seconds, so items given the same
			// lifetime moments apart share one TTL bin.
			pi.ttl = item.expiresAt.Sub(now)
			if rem := pi.ttl % time.Second; rem != 0 {
				pi.ttl += time.Second - rem
			}
		default:
			pi.ttl = p.defaultTTL
		}

		pending[id] = pi
		if !pi.expired {
			values[id] = item.value
		}
	}

	encoded, codecFailed, err := p.marshaller.Marshal(values)
	if err != nil {
		p.counters.recordError()
		return false, ErrBackendFatal("marshal", err)
	}

	failedIDs := make(map[string]struct{})
	for _, id := range codecFailed {
		failedIDs[id] = struct{}{}
		p.logger.Warn("tagpool: codec failed to encode value, dropping from commit", "id", id)
	}

	expiredIDs := make([]string, 0)
	for id, pi := range pending {
		if pi.expired {
			expiredIDs = append(expiredIDs, id)
		}
	}
	if len(expiredIDs) > 0 {
		if failed, err := p.backend.DoDelete(ctx, expiredIDs); err != nil || len(failed) > 0 {
			p.logger.Warn("tagpool: delete of already-expired items failed", "error", err, "failed", failed)
		}
	}

	bins := make(map[time.Duration][]*pendingItem)
	for id, pi := range pending {
		if pi.expired {
			continue
		}
		if _, failed := failedIDs[id]; failed {
			continue
		}
		bins[pi.ttl] = append(bins[pi.ttl], pi)
	}

	var retry []*pendingItem

	for ttl, items := range bins {
		records := make(map[string]Record, len(items))
		ops := TagOps{Add: make(map[string][]string), Remove: make(map[string][]string)}
		for _, pi := range items {
			records[pi.id] = Record{Value: encoded[pi.id], Tags: pi.tags}
			for _, tid := range pi.addTags {
				ops.Add[tid] = append(ops.Add[tid], pi.id)
			}
			for _, tid := range pi.removeTags {
				ops.Remove[tid] = append(ops.Remove[tid], pi.id)
			}
		}

		failed, err := p.backend.DoSave(ctx, records, ttl, ops)
		switch {
		case err != nil && len(items) > 1:
			// Opaque failure on a multi-item bin: schedule every id in
			// the bin for individual retry (spec.md §4.1.1 step 4).
			p.logger.Warn("tagpool: bulk save failed opaquely, scheduling per-item retry", "bin_size", len(items), "error", err)
			retry = append(retry, items...)
		case err != nil:
			p.logger.Error("tagpool: single-item save failed fatally", "id", items[0].id, "error", err)
			failedIDs[items[0].id] = struct{}{}
		default:
			for _, id := range failed {
				failedIDs[id] = struct{}{}
				p.logger.Warn("tagpool: backend reported save failure", "id", id)
			}
		}
	}

	for _, pi := range retry {
		records := map[string]Record{pi.id: {Value: encoded[pi.id], Tags: pi.tags}}
		ops := TagOps{Add: map[string][]string{}, Remove: map[string][]string{}}
		for _, tid := range pi.addTags {
			ops.Add[tid] = []string{pi.id}
		}
		for _, tid := range pi.removeTags {
			ops.Remove[tid] = []string{pi.id}
		}

		failed, err := p.backend.DoSave(ctx, records, pi.ttl, ops)
		if err != nil || len(failed) > 0 {
			failedIDs[pi.id] = struct{}{}
			p.logger.Error("tagpool: per-item retry failed", "id", pi.id, "error", err)
		}
	}

	ok := len(failedIDs) == 0
	if ok {
		p.counters.recordSave()
	} else {
		p.counters.recordError()
	}
	return ok, nil
}
