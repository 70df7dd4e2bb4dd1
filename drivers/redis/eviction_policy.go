package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// safeEvictionPolicies are the only maxmemory-policy values under which
// tag sets are guaranteed to survive as long as the items they reference
// (spec.md §4.3 "Eviction precondition"). An allkeys-* policy may evict a
// tag set while its items remain, or vice versa, breaking invariant (1).
var safeEvictionPolicies = []string{"noeviction"}

func isSafeEvictionPolicy(policy string) bool {
	for _, p := range safeEvictionPolicies {
		if policy == p {
			return true
		}
	}
	return strings.HasPrefix(policy, "volatile-")
}

// checkEvictionPolicy verifies the server's maxmemory-policy is safe for
// tag-aware caching. Called on construction and again before every
// DoSave.
func checkEvictionPolicy(ctx context.Context, client redis.UniversalClient) error {
	res, err := client.ConfigGet(ctx, "maxmemory-policy").Result()
	if err != nil {
		return fmt.Errorf("read maxmemory-policy: %w", err)
	}

	policy, ok := res["maxmemory-policy"]
	if !ok {
		return nil
	}
	if !isSafeEvictionPolicy(policy) {
		return fmt.Errorf("unsafe maxmemory-policy %q: must be noeviction or volatile-*", policy)
	}
	return nil
}
