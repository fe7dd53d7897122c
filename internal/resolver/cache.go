package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Cache memoizes unique label→id lookups in redis. Entries are keyed by
// a per-entity generation counter so a mutation invalidates the whole
// entity at the cost of a single INCR instead of a key scan.
type Cache struct {
	rdb *redis.Client
}

func NewCache(addr, password string) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

// NewCacheFromClient wraps an existing client; used by tests.
func NewCacheFromClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Get(ctx context.Context, entityKey string, teamID int64, label string) (int64, bool) {
	v, err := c.rdb.Get(ctx, c.key(ctx, entityKey, teamID, label)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (c *Cache) Put(ctx context.Context, entityKey string, teamID int64, label string, id int64) {
	// Best effort; a cache write failure never fails the request.
	_ = c.rdb.Set(ctx, c.key(ctx, entityKey, teamID, label), id, cacheTTL).Err()
}

func (c *Cache) Invalidate(ctx context.Context, entityKey string, teamID int64) {
	_ = c.rdb.Incr(ctx, c.genKey(entityKey, teamID)).Err()
}

func (c *Cache) key(ctx context.Context, entityKey string, teamID int64, label string) string {
	gen, err := c.rdb.Get(ctx, c.genKey(entityKey, teamID)).Result()
	if err != nil {
		gen = "0"
	}
	return fmt.Sprintf("fk:%s:%d:%s:%s", entityKey, teamID, gen, strings.ToLower(label))
}

func (c *Cache) genKey(entityKey string, teamID int64) string {
	return fmt.Sprintf("fkgen:%s:%d", entityKey, teamID)
}
