package redis

import (
	"fmt"
	"time"
)

// InvalidationStrategy selects how DoInvalidate sweeps a tag's members
// (spec.md §4.3).
type InvalidationStrategy string

const (
	// StrategyRename is the default: rename the tag set aside, then
	// SMEMBERS + chunked DEL the renamed copy. Safe against the livelock
	// the legacy strategy is prone to under heavy concurrent tagging.
	StrategyRename InvalidationStrategy = "rename"

	// StrategyPop is the legacy SPOP-loop strategy: pop members off the
	// live tag set in batches and DEL them, looping until a pop returns
	// fewer than BulkInvalidationPopLimit. Kept for workloads that cannot
	// tolerate the rename variant's extra round-trip.
	StrategyPop InvalidationStrategy = "pop"
)

// DefaultCacheTTL is the floor applied to any item whose caller-supplied
// TTL is <= 0 (spec.md §4.3 "Per-item TTL floor"): items must expire so
// server-side eviction prefers them over the non-volatile tag sets.
const DefaultCacheTTL = 100 * 24 * time.Hour

// BulkDeleteLimit is the chunk size DoInvalidate's rename strategy
// deletes members in (spec.md §4.3, §8 scenario 3).
const BulkDeleteLimit = 10000

// BulkInvalidationPopLimit is the batch size the legacy SPOP-loop
// strategy pops per iteration.
const BulkInvalidationPopLimit = 1000

// Config represents the Redis backend configuration.
type Config struct {
	// Addrs lists one or more host:port pairs. More than one entry makes
	// redis.NewUniversalClient build a cluster client.
	// When empty, Host and Port are used instead.
	Addrs []string

	// Host is the Redis server host, used when Addrs is empty.
	Host string

	// Port is the Redis server port, used when Addrs is empty.
	Port int

	// Password is the Redis server password.
	Password string

	// Database is the Redis database number (ignored in cluster mode).
	Database int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of client-level retries before
	// giving up on a single command.
	MaxRetries int

	// Timeout is the dial timeout.
	Timeout time.Duration

	// MinRetryBackoff is the minimum backoff between client-level retries.
	MinRetryBackoff time.Duration

	// MaxRetryBackoff is the maximum backoff between client-level retries.
	MaxRetryBackoff time.Duration

	// DefaultCacheTTL overrides the package DefaultCacheTTL for this
	// driver instance.
	DefaultCacheTTL time.Duration

	// InvalidationStrategy selects the DoInvalidate algorithm. Defaults to
	// StrategyRename.
	InvalidationStrategy InvalidationStrategy

	// SkipEvictionPolicyCheck disables the maxmemory-policy precondition
	// check, for servers (e.g. miniredis) that do not implement CONFIG GET
	// faithfully.
	SkipEvictionPolicyCheck bool
}

// DefaultConfig returns a default Redis backend configuration.
func DefaultConfig() Config {
	return Config{
		Host:                 "localhost",
		Port:                 6379,
		Database:             0,
		PoolSize:             10,
		MinIdleConns:         2,
		MaxRetries:           3,
		Timeout:              5 * time.Second,
		MinRetryBackoff:      8 * time.Millisecond,
		MaxRetryBackoff:      512 * time.Millisecond,
		DefaultCacheTTL:      DefaultCacheTTL,
		InvalidationStrategy: StrategyRename,
	}
}

// WithAddrs sets the address list (more than one entry selects cluster mode).
func (c Config) WithAddrs(addrs ...string) Config {
	c.Addrs = addrs
	return c
}

// WithInvalidationStrategy overrides the DoInvalidate algorithm.
func (c Config) WithInvalidationStrategy(s InvalidationStrategy) Config {
	c.InvalidationStrategy = s
	return c
}

// WithSkipEvictionPolicyCheck disables the maxmemory-policy precondition.
func (c Config) WithSkipEvictionPolicyCheck(skip bool) Config {
	c.SkipEvictionPolicyCheck = skip
	return c
}

func (c Config) addrs() []string {
	if len(c.Addrs) > 0 {
		return c.Addrs
	}
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

func (c Config) ttlFloor() time.Duration {
	if c.DefaultCacheTTL > 0 {
		return c.DefaultCacheTTL
	}
	return DefaultCacheTTL
}

func (c Config) strategy() InvalidationStrategy {
	if c.InvalidationStrategy == "" {
		return StrategyRename
	}
	return c.InvalidationStrategy
}
