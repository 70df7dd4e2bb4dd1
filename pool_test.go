package tagpool_test

import (
	"context"
	"testing"
	"time"

	tagpool "github.com/kodecache/tagpool"
	"github.com/kodecache/tagpool/drivers/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *tagpool.PoolImpl {
	t.Helper()
	driver, err := filesystem.NewDriver(filesystem.DefaultConfig().WithDirectory(t.TempDir()))
	require.NoError(t, err)
	pool, err := tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("test"))
	require.NoError(t, err)
	return pool
}

func TestPool_SaveThenGetItemIsHit(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("greeting")
	item.Set("hello").Tag("a", "b")
	require.NoError(t, pool.Save(ctx, item))

	got, err := pool.GetItem(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, got.IsHit())
	assert.Equal(t, "hello", got.Get())
	assert.ElementsMatch(t, []string{"a", "b"}, got.Tags())
}

func TestPool_GetItemUnknownKeyIsMiss(t *testing.T) {
	pool := newTestPool(t)
	got, err := pool.GetItem(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.False(t, got.IsHit())
}

func TestPool_SaveDeferredIsVisibleOnlyAfterCommit(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("deferred")
	item.Set("v")
	require.NoError(t, pool.SaveDeferred(ctx, item))

	got, err := pool.GetItem(ctx, "deferred")
	require.NoError(t, err)
	assert.True(t, got.IsHit(), "GetItem must flush the deferred buffer before reading")
}

func TestPool_CommitOnEmptyBufferReturnsTrue(t *testing.T) {
	pool := newTestPool(t)
	ok, err := pool.Commit(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPool_DeleteItemsOnUnknownKeysIsNoopSuccess(t *testing.T) {
	pool := newTestPool(t)
	err := pool.DeleteItems(context.Background(), []string{"nope1", "nope2"})
	assert.NoError(t, err)
}

func TestPool_DeleteItemsEmptyIsNoop(t *testing.T) {
	pool := newTestPool(t)
	assert.NoError(t, pool.DeleteItems(context.Background(), nil))
}

func TestPool_GetItemsReturnsEmptySequenceForEmptyInput(t *testing.T) {
	pool := newTestPool(t)
	it, err := pool.GetItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, it.All())
}

func TestPool_GetItemsPairsKeysWithHitsAndMisses(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("present")
	item.Set(42)
	require.NoError(t, pool.Save(ctx, item))

	it, err := pool.GetItems(ctx, []string{"present", "absent"})
	require.NoError(t, err)

	require.True(t, it.Next())
	assert.Equal(t, "present", it.Item().Key())
	assert.True(t, it.Item().IsHit())

	require.True(t, it.Next())
	assert.Equal(t, "absent", it.Item().Key())
	assert.False(t, it.Item().IsHit())

	assert.False(t, it.Next())
}

// A miss listed before a hit in the input must still surface the hit first:
// GetItems orders hits in fetch-stream order, then appends every miss in
// input order, rather than interleaving by input position.
func TestPool_GetItemsOrdersHitsBeforeMissesRegardlessOfInputOrder(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("present")
	item.Set(42)
	require.NoError(t, pool.Save(ctx, item))

	it, err := pool.GetItems(ctx, []string{"absent", "present"})
	require.NoError(t, err)

	require.True(t, it.Next())
	assert.Equal(t, "present", it.Item().Key(), "the hit must come first even though it was listed second")
	assert.True(t, it.Item().IsHit())

	require.True(t, it.Next())
	assert.Equal(t, "absent", it.Item().Key())
	assert.False(t, it.Item().IsHit())

	assert.False(t, it.Next())
}

func TestPool_ExpiresAfterNonPositiveTTLDeletesImmediately(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("already-gone")
	item.Set("v").ExpiresAfter(-time.Second)
	require.NoError(t, pool.Save(ctx, item))

	got, err := pool.GetItem(ctx, "already-gone")
	require.NoError(t, err)
	assert.False(t, got.IsHit())
}

func TestPool_InvalidateTagsRemovesOnlyTaggedItems(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	tagged := tagpool.NewItem("tagged")
	tagged.Set("v1").Tag("group-a")
	untagged := tagpool.NewItem("untagged")
	untagged.Set("v2")
	require.NoError(t, pool.Save(ctx, tagged))
	require.NoError(t, pool.Save(ctx, untagged))

	require.NoError(t, pool.InvalidateTags(ctx, []string{"group-a"}))

	got, err := pool.GetItem(ctx, "tagged")
	require.NoError(t, err)
	assert.False(t, got.IsHit())

	got, err = pool.GetItem(ctx, "untagged")
	require.NoError(t, err)
	assert.True(t, got.IsHit())
}

func TestPool_InvalidateTagsEmptyIsNoop(t *testing.T) {
	pool := newTestPool(t)
	assert.NoError(t, pool.InvalidateTags(context.Background(), nil))
}

func TestPool_ReSavingWithChangedTagsUpdatesMembership(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("migrating")
	item.Set("v").Tag("old")
	require.NoError(t, pool.Save(ctx, item))

	replacement := tagpool.NewItem("migrating")
	replacement.Set("v").Tag("new")
	require.NoError(t, pool.Save(ctx, replacement))

	require.NoError(t, pool.InvalidateTags(ctx, []string{"old"}))
	got, err := pool.GetItem(ctx, "migrating")
	require.NoError(t, err)
	assert.True(t, got.IsHit(), "item retagged away from 'old' must survive invalidation of 'old'")

	require.NoError(t, pool.InvalidateTags(ctx, []string{"new"}))
	got, err = pool.GetItem(ctx, "migrating")
	require.NoError(t, err)
	assert.False(t, got.IsHit())
}

func TestPool_HasItemReflectsHitState(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	has, err := pool.HasItem(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, has)

	item := tagpool.NewItem("present")
	item.Set("v")
	require.NoError(t, pool.Save(ctx, item))

	has, err = pool.HasItem(ctx, "present")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPool_StatsTracksHitsAndMisses(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("k")
	item.Set("v")
	require.NoError(t, pool.Save(ctx, item))

	_, err := pool.GetItem(ctx, "k")
	require.NoError(t, err)
	_, err = pool.GetItem(ctx, "missing")
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.GreaterOrEqual(t, stats.Saves, int64(1))
}

func TestPool_InvalidKeyRejected(t *testing.T) {
	pool := newTestPool(t)
	_, err := pool.GetItem(context.Background(), "bad\x00key")
	assert.ErrorIs(t, err, tagpool.ErrInvalidKey)
}

func TestNew_RejectsInvalidNamespace(t *testing.T) {
	driver, err := filesystem.NewDriver(filesystem.DefaultConfig().WithDirectory(t.TempDir()))
	require.NoError(t, err)

	_, err = tagpool.New(driver, tagpool.DefaultConfig().WithNamespace("bad{ns}"))
	assert.ErrorIs(t, err, tagpool.ErrInvalidKey)
}

func TestNew_EmptyNamespaceIsAllowed(t *testing.T) {
	driver, err := filesystem.NewDriver(filesystem.DefaultConfig().WithDirectory(t.TempDir()))
	require.NoError(t, err)

	_, err = tagpool.New(driver, tagpool.DefaultConfig())
	assert.NoError(t, err)
}

func TestPool_TeardownFlushesPendingDeferred(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	item := tagpool.NewItem("pending")
	item.Set("v")
	require.NoError(t, pool.SaveDeferred(ctx, item))

	pool.Teardown(ctx)

	got, err := pool.GetItem(ctx, "pending")
	require.NoError(t, err)
	assert.True(t, got.IsHit())
}
