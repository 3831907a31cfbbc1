package exceptiontype

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheTTL bounds staleness of catalog entries; the catalog is small and
// rarely written, so a short TTL keeps invalidation trivial.
const cacheTTL = 5 * time.Minute

// Cache is a read-through Redis cache for catalog entries keyed by id.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("ems:exception_type:%d", id)
}

// Get returns the cached entry, or nil on miss or any cache failure. Cache
// errors never surface to callers; the store is the source of truth.
func (c *Cache) Get(ctx context.Context, id int64) *ExceptionType {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var et ExceptionType
	if err := json.Unmarshal(raw, &et); err != nil {
		return nil
	}
	return &et
}

// Set stores an entry best-effort.
func (c *Cache) Set(ctx context.Context, et *ExceptionType) {
	raw, err := json.Marshal(et)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(et.ID), raw, cacheTTL)
}
