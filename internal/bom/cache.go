package bom

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TreeCache keeps materialized BOM trees in Redis for a short TTL. Trees are
// read far more often than BOMs change, and a stale tree self-corrects at
// expiry, so no invalidation hooks exist.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache constructs a cache. TTL must be positive.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TreeCache{client: client, ttl: ttl}
}

// Get returns a cached tree when present. Redis faults count as a miss.
func (c *TreeCache) Get(ctx context.Context, key string) (TreeNode, bool) {
	if c == nil || c.client == nil {
		return TreeNode{}, false
	}
	data, err := c.client.Get(ctx, "bom:"+key).Bytes()
	if err != nil {
		return TreeNode{}, false
	}
	var node TreeNode
	if err := json.Unmarshal(data, &node); err != nil {
		return TreeNode{}, false
	}
	return node, true
}

// Set stores a tree. Failures are dropped; the cache is an optimisation.
func (c *TreeCache) Set(ctx context.Context, key string, node TreeNode) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(node)
	if err != nil {
		return
	}
	c.client.Set(ctx, "bom:"+key, data, c.ttl)
}
