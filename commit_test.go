package tagpool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tagpool "github.com/kodecache/tagpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory tagpool.BackendDriver test double that can be
// told to fail DoSave for specific ids, to exercise the commit protocol's
// bulk-then-retry path without a real backend.
type fakeDriver struct {
	mu         sync.Mutex
	records    map[string]tagpool.Record
	tagMembers map[string]map[string]struct{} // tagID -> set of itemIDs

	failIDs   map[string]struct{} // ids that fail DoSave once, then succeed
	saveCalls int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		records:    make(map[string]tagpool.Record),
		tagMembers: make(map[string]map[string]struct{}),
		failIDs:    make(map[string]struct{}),
	}
}

func (f *fakeDriver) DoFetch(ctx context.Context, ids []string) ([]tagpool.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tagpool.FetchResult
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out = append(out, tagpool.FetchResult{ID: id, Record: rec})
		}
	}
	return out, nil
}

func (f *fakeDriver) DoSave(ctx context.Context, records map[string]tagpool.Record, ttl time.Duration, ops tagpool.TagOps) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++

	var anyFailed bool
	for id := range records {
		if _, fail := f.failIDs[id]; fail {
			anyFailed = true
		}
	}
	if anyFailed && len(records) > 1 {
		// Opaque bulk failure: nothing persisted, caller retries per item.
		// The failure is consumed here so the individual retry succeeds.
		for id := range records {
			delete(f.failIDs, id)
		}
		return nil, errors.New("bulk save failed")
	}

	var failed []string
	for id, rec := range records {
		if _, fail := f.failIDs[id]; fail {
			delete(f.failIDs, id) // fail once, then succeed on retry
			failed = append(failed, id)
			continue
		}
		f.records[id] = rec
	}
	for tagID, itemIDs := range ops.Add {
		if f.tagMembers[tagID] == nil {
			f.tagMembers[tagID] = make(map[string]struct{})
		}
		for _, id := range itemIDs {
			f.tagMembers[tagID][id] = struct{}{}
		}
	}
	for tagID, itemIDs := range ops.Remove {
		for _, id := range itemIDs {
			delete(f.tagMembers[tagID], id)
		}
	}
	return failed, nil
}

// DoDelete deletes ids, applying the same failIDs simulation as DoSave: an
// opaque bulk failure on a multi-id batch consumes the failing ids so a
// caller's individual retry succeeds; a single-id batch reports the
// failure back in failed instead.
func (f *fakeDriver) DoDelete(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var anyFailed bool
	for _, id := range ids {
		if _, fail := f.failIDs[id]; fail {
			anyFailed = true
		}
	}
	if anyFailed && len(ids) > 1 {
		for _, id := range ids {
			delete(f.failIDs, id)
		}
		return nil, errors.New("bulk delete failed")
	}

	var failed []string
	for _, id := range ids {
		if _, fail := f.failIDs[id]; fail {
			delete(f.failIDs, id)
			failed = append(failed, id)
			continue
		}
		delete(f.records, id)
	}
	return failed, nil
}

func (f *fakeDriver) DoDeleteTagRelations(ctx context.Context, tagData map[string][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tagID, itemIDs := range tagData {
		for _, id := range itemIDs {
			delete(f.tagMembers[tagID], id)
		}
	}
	return nil
}

func (f *fakeDriver) DoInvalidate(ctx context.Context, tagIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tagID := range tagIDs {
		for id := range f.tagMembers[tagID] {
			delete(f.records, id)
		}
		delete(f.tagMembers, tagID)
	}
	return nil
}

func TestCommit_BulkBinFailureIsRetriedPerItem(t *testing.T) {
	driver := newFakeDriver()
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("commit"))
	require.NoError(t, err)
	ctx := context.Background()

	a := tagpool.NewItem("a")
	a.Set("va").ExpiresAfter(time.Minute)
	b := tagpool.NewItem("b")
	b.Set("vb").ExpiresAfter(time.Minute)
	require.NoError(t, pool.SaveDeferred(ctx, a))
	require.NoError(t, pool.SaveDeferred(ctx, b))

	driver.failIDs["commit"+"b"] = struct{}{}

	ok, err := pool.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "per-item retry after an opaque bulk failure should recover both items")

	gotA, err := pool.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, gotA.IsHit())
	gotB, err := pool.GetItem(ctx, "b")
	require.NoError(t, err)
	assert.True(t, gotB.IsHit())
}

func TestCommit_DistinctTTLsAreBinnedSeparately(t *testing.T) {
	driver := newFakeDriver()
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("bins"))
	require.NoError(t, err)
	ctx := context.Background()

	short := tagpool.NewItem("short")
	short.Set("v").ExpiresAfter(time.Minute)
	long := tagpool.NewItem("long")
	long.Set("v").ExpiresAfter(time.Hour)
	noExpiry := tagpool.NewItem("forever")
	noExpiry.Set("v")

	require.NoError(t, pool.SaveDeferred(ctx, short))
	require.NoError(t, pool.SaveDeferred(ctx, long))
	require.NoError(t, pool.SaveDeferred(ctx, noExpiry))

	ok, err := pool.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, driver.saveCalls, "three distinct TTL bins should produce three DoSave calls")
}

func TestDeleteItems_BulkFailureIsRetriedPerItem(t *testing.T) {
	driver := newFakeDriver()
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("del"))
	require.NoError(t, err)
	ctx := context.Background()

	a := tagpool.NewItem("a")
	a.Set("va")
	b := tagpool.NewItem("b")
	b.Set("vb")
	require.NoError(t, pool.Save(ctx, a))
	require.NoError(t, pool.Save(ctx, b))

	driver.failIDs["del"+"b"] = struct{}{}

	err = pool.DeleteItems(ctx, []string{"a", "b"})
	require.NoError(t, err, "per-item retry after an opaque bulk delete failure should recover both ids")

	gotA, err := pool.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.False(t, gotA.IsHit())
	gotB, err := pool.GetItem(ctx, "b")
	require.NoError(t, err)
	assert.False(t, gotB.IsHit())
}

func TestDeleteItems_SingleItemDeleteFailureIsFatal(t *testing.T) {
	driver := newFakeDriver()
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("delsingle"))
	require.NoError(t, err)
	ctx := context.Background()

	item := tagpool.NewItem("only")
	item.Set("v")
	require.NoError(t, pool.Save(ctx, item))
	driver.failIDs["delsingle"+"only"] = struct{}{}

	err = pool.DeleteItems(ctx, []string{"only"})
	assert.Error(t, err)
}

func TestCommit_SingleItemSaveFailureIsFatalNotRetried(t *testing.T) {
	driver := newFakeDriver()
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("single"))
	require.NoError(t, err)
	ctx := context.Background()

	item := tagpool.NewItem("only")
	item.Set("v").ExpiresAfter(time.Minute)
	require.NoError(t, pool.SaveDeferred(ctx, item))
	driver.failIDs["single"+"only"] = struct{}{}

	ok, err := pool.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
