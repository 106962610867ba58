package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

const (
	redisKeyPrefix  = "sightline:element:"
	redisKeySet     = "sightline:elements"
	redisDefaultTTL = time.Hour
)

// RedisCache is a shared CacheStore for multi-node deployments. Members
// are tracked in a set so Purge can drop them without a full keyspace
// scan.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.CacheStore = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = redisDefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, id string) (types.Element, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return nil, false
	}
	var element types.Element
	if err := json.Unmarshal([]byte(data), &element); err != nil {
		return nil, false
	}
	return element, true
}

func (c *RedisCache) Set(ctx context.Context, elements []types.Element) error {
	var errs []error
	for _, element := range elements {
		data, err := json.Marshal(element)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		key := redisKeyPrefix + element.InternalID()
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.client.SAdd(ctx, redisKeySet, key).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *RedisCache) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, redisKeyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	members := make([]any, 0, len(keys))
	for _, k := range keys {
		members = append(members, k)
	}
	return c.client.SRem(ctx, redisKeySet, members...).Err()
}

func (c *RedisCache) Purge(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, redisKeySet).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, redisKeySet).Err()
}
