package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/TickerNews/internal/news"
)

const cacheKeyPrefix = "news:"

// NewsCache 基于 Redis 的聚合结果缓存。任何 Redis 错误都只记日志：Get 视为未命中，Set 丢弃
type NewsCache struct {
	rdb *redis.Client
}

// NewNewsCache rdb 为 nil 时永远未命中
func NewNewsCache(rdb *redis.Client) *NewsCache {
	return &NewsCache{rdb: rdb}
}

func cacheKey(ticker string) string {
	return cacheKeyPrefix + ticker
}

func (c *NewsCache) Get(ctx context.Context, ticker string) (*news.AggregateResult, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	bs, err := c.rdb.Get(ctx, cacheKey(ticker)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("warn: cache get %s error: %v", ticker, err)
		}
		return nil, false
	}
	var res news.AggregateResult
	if err := json.Unmarshal(bs, &res); err != nil {
		log.Printf("warn: cache entry %s decode error: %v", ticker, err)
		return nil, false
	}
	return &res, true
}

func (c *NewsCache) Set(ctx context.Context, ticker string, result *news.AggregateResult, ttl time.Duration) {
	if c == nil || c.rdb == nil || result == nil {
		return
	}
	bs, err := json.Marshal(result)
	if err != nil {
		log.Printf("warn: cache entry %s encode error: %v", ticker, err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(ticker), bs, ttl).Err(); err != nil {
		log.Printf("warn: cache set %s error: %v", ticker, err)
	}
}
