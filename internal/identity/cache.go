package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps resolved identities in Redis so every request does not hit
// PostgreSQL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(userID int64) string {
	return "barledger:identity:" + strconv.FormatInt(userID, 10)
}

// Get returns the cached identity, reporting false on a miss.
func (c *Cache) Get(ctx context.Context, userID int64) (Identity, bool, error) {
	if c == nil || c.client == nil {
		return Identity{}, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// Set stores the identity for the configured TTL.
func (c *Cache) Set(ctx context.Context, id Identity) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(id.UserID), raw, c.ttl).Err()
}

// Evict drops cached identities.
func (c *Cache) Evict(ctx context.Context, userIDs ...int64) error {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cacheKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
