package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte store behind CachedProvider.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	Client *redis.Client
}

func (c RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// CachedProvider serves datasets from Cache and fills it from Next on a miss.
// Cache failures degrade to a direct fetch.
type CachedProvider struct {
	Next   Provider
	Cache  Cache
	TTL    time.Duration
	Logger *zap.Logger
}

func CacheKey(subject, period string) string {
	return fmt.Sprintf("tickerscope:dataset:%s:%s", NormalizeSubject(subject), period)
}

func (c *CachedProvider) Fetch(ctx context.Context, subject, period string) (*Dataset, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := CacheKey(subject, period)
	if raw, err := c.Cache.Get(ctx, key); err == nil {
		var ds Dataset
		if err := json.Unmarshal(raw, &ds); err == nil && ds.Validate() == nil {
			logger.Debug("dataset cache hit", zap.String("key", key))
			return &ds, nil
		}
		logger.Warn("discarding unreadable cached dataset", zap.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		logger.Warn("dataset cache read failed", zap.String("key", key), zap.Error(err))
	}

	ds, err := c.Next.Fetch(ctx, subject, period)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(ds); err == nil {
		if err := c.Cache.Set(ctx, key, raw, c.TTL); err != nil {
			logger.Warn("dataset cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ds, nil
}

// FallbackProvider substitutes Secondary when Primary fails or returns an
// unusable dataset.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider
	Logger    *zap.Logger
}

func (f *FallbackProvider) Fetch(ctx context.Context, subject, period string) (*Dataset, error) {
	ds, err := f.Primary.Fetch(ctx, subject, period)
	if err == nil {
		err = ds.Validate()
	}
	if err == nil {
		return ds, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if f.Logger != nil {
		f.Logger.Warn("primary price provider failed, using fallback data",
			zap.String("subject", subject), zap.Error(err))
	}
	return f.Secondary.Fetch(ctx, subject, period)
}
