package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	tagpool "github.com/kodecache/tagpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyInputYieldsNoChunks(t *testing.T) {
	assert.Nil(t, chunk(nil, BulkDeleteLimit))
}

func TestChunk_SplitsAtExactBoundary(t *testing.T) {
	items := make([]string, BulkDeleteLimit)
	for i := range items {
		items[i] = fmt.Sprintf("id-%d", i)
	}
	chunks := chunk(items, BulkDeleteLimit)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], BulkDeleteLimit)
}

// TestChunk_25001ItemsSplitAcrossBulkDeleteLimit exercises spec.md §8
// scenario 3: invalidating a tag with 25,001 members must sweep it in
// chunks of at most BulkDeleteLimit, with the remainder in a final
// shorter chunk rather than dropped or merged.
func TestChunk_25001ItemsSplitAcrossBulkDeleteLimit(t *testing.T) {
	const total = 25001
	items := make([]string, total)
	for i := range items {
		items[i] = fmt.Sprintf("id-%d", i)
	}

	chunks := chunk(items, BulkDeleteLimit)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], BulkDeleteLimit)
	assert.Len(t, chunks[1], BulkDeleteLimit)
	assert.Len(t, chunks[2], 5001)

	var seen int
	for _, c := range chunks {
		seen += len(c)
	}
	assert.Equal(t, total, seen)
}

// TestDriver_InvalidateTagsSweepsAllMembers is the driver-level companion
// to the chunk() boundary tests above: it confirms invalidateRename's
// chunked delete still removes every item a tag references end to end.
// BulkDeleteLimit itself (10000) is exercised directly against chunk()
// rather than here, since saving 25,001 real records into miniredis per
// test run would make the suite slow for no extra coverage.
func TestDriver_InvalidateTagsSweepsAllMembers(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	parts := strings.Split(s.Addr(), ":")
	port, err := strconv.Atoi(parts[1])
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = parts[0]
	cfg.Port = port
	cfg.SkipEvictionPolicyCheck = true

	d, err := NewDriver(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	const n = 25 // kept small for test speed; chunk() itself is exercised
	// at the real BulkDeleteLimit boundary above.
	ids := make([]string, n)
	ops := tagpool.TagOps{Add: map[string][]string{"tag": {}}}
	records := make(map[string]tagpool.Record, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%d", i)
		ids[i] = id
		records[id] = tagpool.Record{Value: []byte("v"), Tags: []string{"tag"}}
		ops.Add["tag"] = append(ops.Add["tag"], id)
	}

	_, err = d.DoSave(ctx, records, 0, ops)
	require.NoError(t, err)

	require.NoError(t, d.DoInvalidate(ctx, []string{"tag"}))

	results, err := d.DoFetch(ctx, ids)
	require.NoError(t, err)
	assert.Empty(t, results)
}
