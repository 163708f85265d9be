package redisutil

import (
	"context"
	"encoding/json"
	"time"

	"netedge-siem/pkg/redis"
)

// LookupCache is a short-TTL JSON cache over pkg/redis, used to absorb
// repeated find-by-value lookups against the document store.
type LookupCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLookupCache creates a cache whose keys are prefixed with prefix and
// whose entries expire after ttl.
func NewLookupCache(client *redis.Client, prefix string, ttl time.Duration) *LookupCache {
	return &LookupCache{client: client, prefix: prefix, ttl: ttl}
}

// Get unmarshals a cached value into dest, reporting whether an entry was
// found. A cache miss or a redis error other than key-not-found is treated
// as a miss — callers fall through to the origin lookup.
func (c *LookupCache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.client.GetString(ctx, c.prefix+key)
	if err != nil {
		// treats both key-not-found and any other redis error as a miss
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false
	}
	return true
}

// Set stores value under key, overwriting any existing entry.
func (c *LookupCache) Set(ctx context.Context, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.SetWithExpiry(ctx, c.prefix+key, encoded, c.ttl)
}
