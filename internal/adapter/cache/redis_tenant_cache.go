package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/tenant"
)

// RedisTenantCache implements tenant.Cache backed by Redis.
type RedisTenantCache struct {
	client redis.UniversalClient
}

var _ tenant.Cache = (*RedisTenantCache)(nil)

// NewRedisTenantCache constructs a Redis-backed tenant cache.
func NewRedisTenantCache(client redis.UniversalClient) *RedisTenantCache {
	return &RedisTenantCache{client: client}
}

func cacheKey(name string) string {
	return "tenant:" + name
}

// Get loads a cached tenant, returning (nil, nil) on a miss.
func (c *RedisTenantCache) Get(ctx context.Context, name string) (*domain.Tenant, error) {
	bytes, err := c.client.Get(ctx, cacheKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	var t domain.Tenant
	if err := json.Unmarshal(bytes, &t); err != nil {
		return nil, fmt.Errorf("decode tenant: %w", err)
	}
	return &t, nil
}

// Set stores the tenant with a TTL.
func (c *RedisTenantCache) Set(ctx context.Context, name string, t domain.Tenant, ttl time.Duration) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tenant: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(name), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist tenant: %w", err)
	}
	return nil
}
