package pricing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// MemoryCache keeps quotes for a single process.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]Quote)}
}

func (c *MemoryCache) Get(_ context.Context, code string) (Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[code]
	return q, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, code string, q Quote) error {
	c.mu.Lock()
	c.quotes[code] = q
	c.mu.Unlock()
	return nil
}

// RedisCache shares quotes between the api and worker processes.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func quoteKey(code string) string {
	return fmt.Sprintf("giftcardpay:quote:%s", code)
}

func (c *RedisCache) Get(ctx context.Context, code string) (Quote, bool, error) {
	m, err := c.rdb.HGetAll(ctx, quoteKey(code)).Result()
	if err != nil {
		return Quote{}, false, err
	}
	if len(m) == 0 {
		return Quote{}, false, nil
	}
	price, err := decimal.NewFromString(m["price"])
	if err != nil {
		return Quote{}, false, fmt.Errorf("cached price for %s: %w", code, err)
	}
	fetched, err := strconv.ParseInt(m["fetched_at"], 10, 64)
	if err != nil {
		return Quote{}, false, fmt.Errorf("cached fetched_at for %s: %w", code, err)
	}
	return Quote{Price: price, FetchedAt: time.Unix(0, fetched)}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, q Quote) error {
	key := quoteKey(code)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"price", q.Price.String(),
		"fetched_at", strconv.FormatInt(q.FetchedAt.UnixNano(), 10),
	)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
