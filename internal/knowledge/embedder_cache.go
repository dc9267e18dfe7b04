package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss 缓存中没有该键
var ErrCacheMiss = errors.New("cache miss")

// Cache 向量缓存的最小读写接口
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache 基于 go-redis 的 Cache 实现
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedEmbedder 先查缓存再调用下游 Embedder。缓存故障只记录警告
type CachedEmbedder struct {
	inner  Embedder
	cache  Cache
	model  string
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedEmbedder(inner Embedder, cache Cache, model string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		model:  model,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if b, err := c.cache.Get(ctx, key); err == nil {
		var vec []float32
		if err := json.Unmarshal(b, &vec); err == nil && len(vec) == c.inner.Dimensions() {
			c.hits.Add(1)
			return vec, nil
		}
		c.logger.Warn("discarding malformed cached embedding", zap.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(vec)
	if err != nil {
		return vec, nil
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// HitRate 缓存命中率
func (c *CachedEmbedder) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", c.model, c.inner.Dimensions(), text)))
	return "embedding:" + hex.EncodeToString(sum[:])
}
