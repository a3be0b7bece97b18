package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/redis"
)

// ReadCache holds list pages and unread counts between mutations.
// Misses and cache errors are indistinguishable to callers.
type ReadCache interface {
	GetList(ctx context.Context, userID string, opts ListOptions) (Page, bool)
	SetList(ctx context.Context, userID string, opts ListOptions, page Page)
	GetUnread(ctx context.Context, userID string) (int, bool)
	SetUnread(ctx context.Context, userID string, n int)
	// Invalidate drops every cached entry of userID.
	Invalidate(ctx context.Context, userID string)
}

// RedisReadCache stores pages of a user in one hash, so a single DEL drops
// them all, and the unread count in a plain key.
type RedisReadCache struct {
	cache    redis.Provider
	prefix   string
	listTTL  time.Duration
	countTTL time.Duration
}

func NewRedisReadCache(cache redis.Provider, prefix string, listTTL, countTTL time.Duration) *RedisReadCache {
	return &RedisReadCache{cache: cache, prefix: prefix, listTTL: listTTL, countTTL: countTTL}
}

func (c *RedisReadCache) listKey(userID string) string {
	return c.prefix + "list:" + userID
}

func (c *RedisReadCache) countKey(userID string) string {
	return c.prefix + "unread:" + userID
}

func (c *RedisReadCache) GetList(ctx context.Context, userID string, opts ListOptions) (Page, bool) {
	client := c.cache.Get(ctx)
	if client == nil {
		return Page{}, false
	}

	data, err := client.HGet(ctx, c.listKey(userID), opts.cacheKey()).Bytes()
	if err != nil {
		c.report(ctx, err)
		return Page{}, false
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return Page{}, false
	}
	return page, true
}

func (c *RedisReadCache) SetList(ctx context.Context, userID string, opts ListOptions, page Page) {
	client := c.cache.Get(ctx)
	if client == nil {
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		return
	}

	key := c.listKey(userID)
	_, err = client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, opts.cacheKey(), data)
		p.Expire(ctx, key, c.listTTL)
		return nil
	})
	c.report(ctx, err)
}

func (c *RedisReadCache) GetUnread(ctx context.Context, userID string) (int, bool) {
	client := c.cache.Get(ctx)
	if client == nil {
		return 0, false
	}

	s, err := client.Get(ctx, c.countKey(userID)).Result()
	if err != nil {
		c.report(ctx, err)
		return 0, false
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *RedisReadCache) SetUnread(ctx context.Context, userID string, n int) {
	client := c.cache.Get(ctx)
	if client == nil {
		return
	}
	c.report(ctx, client.Set(ctx, c.countKey(userID), n, c.countTTL).Err())
}

func (c *RedisReadCache) Invalidate(ctx context.Context, userID string) {
	client := c.cache.Get(ctx)
	if client == nil {
		return
	}
	c.report(ctx, client.Del(ctx, c.listKey(userID), c.countKey(userID)).Err())
}

func (c *RedisReadCache) report(ctx context.Context, err error) {
	if err == nil || errors.Is(err, goredis.Nil) {
		return
	}
	_ = c.cache.Report(ctx, err)
}

var _ ReadCache = (*RedisReadCache)(nil)
