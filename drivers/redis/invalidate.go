package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	tagpool "github.com/kodecache/tagpool"
	goredis "github.com/redis/go-redis/v9"
)

// DoInvalidate sweeps every item referenced by tagIDs, using the
// configured strategy (spec.md §4.3).
func (d *Driver) DoInvalidate(ctx context.Context, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	switch d.strategy {
	case StrategyPop:
		return d.invalidatePop(ctx, tagIDs)
	default:
		return d.invalidateRename(ctx, tagIDs)
	}
}

// invalidateRename is the default two-phase invalidation (spec.md §4.3):
// rename every tag set aside under a hash-tagged token so an item saved
// concurrently lands in a fresh set under the original name, then sweep
// the renamed copies.
//
// Per-shard routing for cluster topologies (spec.md §9 "Per-connection
// routing for Redis-cluster invalidation") is delegated to go-redis's
// ClusterClient, which splits a Pipeline's commands by hash slot and
// executes each group against its owning node automatically — there is
// no need to group tag ids by connection by hand.
func (d *Driver) invalidateRename(ctx context.Context, tagIDs []string) error {
	renamed := make(map[string]string, len(tagIDs)) // original tagID -> renamed key
	for _, tagID := range tagIDs {
		token, err := randomToken()
		if err != nil {
			return tagpool.ErrBackendFatal("redis", fmt.Errorf("generate invalidation token: %w", err))
		}
		renamed[tagID] = "{" + tagID + "}" + token
	}

	pipe := d.client.Pipeline()
	renameCmds := make(map[string]*goredis.StatusCmd, len(renamed))
	for tagID, dest := range renamed {
		renameCmds[tagID] = pipe.Rename(ctx, tagID, dest)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		d.logger.Warn("tagpool/redis: bulk rename reported a pipeline-level error, inspecting per-tag results", "error", err)
	}

	var live []string
	for tagID, cmd := range renameCmds {
		if err := cmd.Err(); err != nil {
			// Tag had no members (RENAME on a missing key): nothing to sweep.
			continue
		}
		live = append(live, renamed[tagID])
	}
	if len(live) == 0 {
		return nil
	}

	smembersPipe := d.client.Pipeline()
	memberCmds := make([]*goredis.StringSliceCmd, len(live))
	for i, key := range live {
		memberCmds[i] = smembersPipe.SMembers(ctx, key)
	}
	if _, err := smembersPipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return tagpool.ErrBackendFatal("redis", fmt.Errorf("smembers renamed tag sets: %w", err))
	}

	toDelete := make([]string, 0, len(live))
	toDelete = append(toDelete, live...) // the renamed tag sets themselves
	for _, cmd := range memberCmds {
		members, err := cmd.Result()
		if err != nil {
			continue
		}
		toDelete = append(toDelete, members...)
	}

	for _, c := range chunk(toDelete, BulkDeleteLimit) {
		if _, err := d.DoDelete(ctx, c); err != nil {
			return tagpool.ErrBackendFatal("redis", fmt.Errorf("delete invalidated chunk: %w", err))
		}
	}
	return nil
}

// invalidatePop is the legacy strategy: pop members off the live tag set
// in batches and delete them, looping until a pop returns fewer than
// BulkInvalidationPopLimit members. Simpler than the rename variant but
// livelock-prone under heavy concurrent tagging of the same tag (spec.md
// §4.3 "Alternative (legacy) invalidation").
func (d *Driver) invalidatePop(ctx context.Context, tagIDs []string) error {
	for _, tagID := range tagIDs {
		for {
			popped, err := d.client.SPopN(ctx, tagID, int64(BulkInvalidationPopLimit)).Result()
			if err != nil && !errors.Is(err, goredis.Nil) {
				return tagpool.ErrBackendFatal("redis", fmt.Errorf("spop %q: %w", tagID, err))
			}
			if len(popped) > 0 {
				if _, err := d.DoDelete(ctx, popped); err != nil {
					return tagpool.ErrBackendFatal("redis", fmt.Errorf("delete popped members: %w", err))
				}
			}
			if len(popped) < BulkInvalidationPopLimit {
				break
			}
		}
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func chunk(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
