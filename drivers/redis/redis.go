// Package redis is a tagpool.BackendDriver backed by Redis: items are
// expiring strings, tag relations are Redis sets, writes are pipelined.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tagpool "github.com/kodecache/tagpool"
	"github.com/kodecache/tagpool/internal/envelope"
	goredis "github.com/redis/go-redis/v9"
)

// Driver is a Redis-backed tagpool.BackendDriver (spec.md §4.3).
type Driver struct {
	client    goredis.UniversalClient
	ttlFloor  time.Duration
	strategy  InvalidationStrategy
	skipCheck bool
	logger    *slog.Logger
}

var _ tagpool.BackendDriver = (*Driver)(nil)

// NewDriver connects to Redis per cfg and verifies the eviction policy
// precondition (spec.md §4.3 "Eviction precondition").
func NewDriver(cfg Config) (*Driver, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, tagpool.ErrBackendFatal("redis", err)
	}
	return NewDriverWithClient(client, cfg)
}

// NewDriverWithClient wraps an already-connected client, still applying
// cfg's TTL floor, invalidation strategy and eviction policy check.
func NewDriverWithClient(client goredis.UniversalClient, cfg Config) (*Driver, error) {
	d := &Driver{
		client:    client,
		ttlFloor:  cfg.ttlFloor(),
		strategy:  cfg.strategy(),
		skipCheck: cfg.SkipEvictionPolicyCheck,
		logger:    slog.Default(),
	}
	if !d.skipCheck {
		if err := checkEvictionPolicy(context.Background(), client); err != nil {
			return nil, tagpool.ErrBackendFatal("redis", err)
		}
	}
	return d, nil
}

// DoFetch MGETs every id and decodes the envelope for each hit, silently
// dropping misses and undecodable entries (spec.md §7).
func (d *Driver) DoFetch(ctx context.Context, ids []string) ([]tagpool.FetchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var vals []any
	err := withRetry(ctx, func() error {
		var mgetErr error
		vals, mgetErr = d.client.MGet(ctx, ids...).Result()
		return mgetErr
	})
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	results := make([]tagpool.FetchResult, 0, len(ids))
	for i, v := range vals {
		if v == nil {
			continue
		}
		raw, ok := asBytes(v)
		if !ok {
			continue
		}
		tags, payload, err := envelope.Decode(raw)
		if err != nil {
			d.logger.Warn("tagpool/redis: undecodable envelope, treating as miss", "id", ids[i], "error", err)
			continue
		}
		results = append(results, tagpool.FetchResult{ID: ids[i], Record: tagpool.Record{Value: payload, Tags: tags}})
	}
	return results, nil
}

func asBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}

// DoSave runs SETEX per record, then SADD per addTagData entry, then SREM
// per removeTagData entry in one pipeline, in that order (spec.md §4.3
// "doSave"): item-store operations are observed before the tag-set-add
// operations that reference them. Because all three steps share one
// pipeline, SADD and SREM are queued for every id in ops whatever its
// SETEX outcome; ids whose SETEX reply is not OK are reported in failed.
func (d *Driver) DoSave(ctx context.Context, records map[string]tagpool.Record, ttl time.Duration, ops tagpool.TagOps) ([]string, error) {
	if err := d.checkEvictionPolicyIfDue(ctx); err != nil {
		return nil, err
	}

	effectiveTTL := ttl
	if effectiveTTL <= 0 {
		effectiveTTL = d.ttlFloor
	}

	pipe := d.client.Pipeline()
	type cmdRef struct {
		id  string
		cmd *goredis.StatusCmd
	}
	setCmds := make([]cmdRef, 0, len(records))

	for id, rec := range records {
		data := envelope.Encode(rec.Tags, rec.Value)
		setCmds = append(setCmds, cmdRef{id: id, cmd: pipe.SetEx(ctx, id, data, effectiveTTL)})
	}

	failedSet := make(map[string]struct{})

	for tagID, itemIDs := range ops.Add {
		var live []any
		for _, id := range itemIDs {
			live = append(live, id)
		}
		if len(live) > 0 {
			pipe.SAdd(ctx, tagID, live...)
		}
	}
	for tagID, itemIDs := range ops.Remove {
		var live []any
		for _, id := range itemIDs {
			live = append(live, id)
		}
		if len(live) > 0 {
			pipe.SRem(ctx, tagID, live...)
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, goredis.Nil) {
		if len(records) > 1 {
			return nil, tagpool.Retryable(fmt.Errorf("pipeline exec: %w", err))
		}
		return nil, fmt.Errorf("pipeline exec: %w", err)
	}

	for _, ref := range setCmds {
		if status, cmdErr := ref.cmd.Result(); cmdErr != nil || status != "OK" {
			failedSet[ref.id] = struct{}{}
		}
	}

	failed := make([]string, 0, len(failedSet))
	for id := range failedSet {
		failed = append(failed, id)
	}
	return failed, nil
}

// checkEvictionPolicyIfDue re-verifies the eviction policy precondition on
// every save, per spec.md §4.3.
func (d *Driver) checkEvictionPolicyIfDue(ctx context.Context) error {
	if d.skipCheck {
		return nil
	}
	if err := checkEvictionPolicy(ctx, d.client); err != nil {
		return tagpool.ErrBackendFatal("redis", err)
	}
	return nil
}

// DoDelete issues a single DEL across all ids. Redis's DEL reports only a
// count of keys removed, not which ones, so a failure after retries is
// attributed to every id in the batch rather than guessed at.
func (d *Driver) DoDelete(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	copy(keys, ids)
	err := withRetry(ctx, func() error {
		return d.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return keys, err
	}
	return nil, nil
}

// DoDeleteTagRelations pipelines SREM for every (tag, items) entry.
func (d *Driver) DoDeleteTagRelations(ctx context.Context, tagData map[string][]string) error {
	if len(tagData) == 0 {
		return nil
	}
	pipe := d.client.Pipeline()
	for tagID, itemIDs := range tagData {
		members := make([]any, len(itemIDs))
		for i, id := range itemIDs {
			members[i] = id
		}
		pipe.SRem(ctx, tagID, members...)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, goredis.Nil) {
		d.logger.Warn("tagpool/redis: tag relation cleanup failed", "error", err)
	}
	return nil
}

// DoClear flushes the entire logical database. Intended for single-tenant
// namespaces; callers sharing a Redis database across namespaces should
// not wire Pool.Clear to this backend.
func (d *Driver) DoClear(ctx context.Context) error {
	if err := d.client.FlushDB(ctx).Err(); err != nil {
		return tagpool.ErrBackendFatal("redis", fmt.Errorf("flushdb: %w", err))
	}
	return nil
}

// retryMaxElapsed bounds how long withRetry keeps retrying a single
// operation: brief connection blips and failovers, not a persistently
// down server.
const retryMaxElapsed = 10 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableRedisError reports whether err is a transient condition
// worth retrying: a brief connection blip or a cluster node mid-failover.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection reset"):
		return true
	case strings.Contains(errStr, "broken pipe"):
		return true
	case strings.Contains(errStr, "connection refused"):
		return true
	case strings.Contains(errStr, "i/o timeout"):
		return true
	case strings.Contains(errStr, "loading"):
		// Server is loading the dataset into memory (e.g. after restart).
		return true
	case strings.Contains(errStr, "clusterdown"):
		return true
	}
	return false
}

// withRetry wraps op with the package's exponential backoff policy.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableRedisError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(newRetryBackoff(), ctx))
}
