package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const listingKey = "keys"

// ClientSource hands out the current Redis client. redisholder.Holder swaps
// it on reconnect, so callers must not keep the result.
type ClientSource interface {
	Get() redis.UniversalClient
}

// ListingCache keeps the last materialized bucket listing in Redis for a short TTL.
type ListingCache struct {
	Clients   ClientSource
	Namespace string
	TTL       time.Duration
}

// Create listing cache on top of a Redis connection
func NewListingCache(namespace string, ttl time.Duration, clients ClientSource) *ListingCache {
	return &ListingCache{
		Namespace: namespace,
		TTL:       ttl,
		Clients:   clients,
	}
}

// Keys returns the cached listing; ok is false on a miss.
func (c *ListingCache) Keys(ctx context.Context) ([]string, bool, error) {
	raw, err := c.Clients.Get().Get(ctx, c.key(listingKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

func (c *ListingCache) StoreKeys(ctx context.Context, keys []string) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return c.Clients.Get().Set(ctx, c.key(listingKey), raw, c.TTL).Err()
}

// Flush drops every entry of the namespace.
func (c *ListingCache) Flush(ctx context.Context) error {
	rdb := c.Clients.Get()
	keys, err := rdb.Keys(ctx, c.Namespace+":*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	//using pipeline to delete keys efficiently
	pl := rdb.Pipeline()
	for _, key := range keys {
		pl.Del(ctx, key)
	}

	_, err = pl.Exec(ctx)
	return err
}

func (c *ListingCache) key(k string) string {
	return c.Namespace + ":" + k
}
