package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache errors
var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
)

// CacheConfig defines cache configuration for different data types
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

var (
	CourseCacheConfig = CacheConfig{
		TTL:    time.Minute,
		Prefix: "course:",
	}

	UserCacheConfig = CacheConfig{
		TTL:    15 * time.Minute,
		Prefix: "user:",
	}

	// Dashboard projections are cheap to rebuild and must not lag for long.
	StatsCacheConfig = CacheConfig{
		TTL:    time.Minute,
		Prefix: "stats:",
	}
)

// CacheHelper provides prefixed JSON caching over a redis client.
// A nil client turns every write into a no-op and every read into ErrCacheNotAvailable.
type CacheHelper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCacheHelper(client *redis.Client, config CacheConfig) *CacheHelper {
	return &CacheHelper{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// GetCacheKey generates a cache key with prefix
func (c *CacheHelper) GetCacheKey(key string) string {
	return c.prefix + key
}

func (c *CacheHelper) TTL() time.Duration {
	return c.ttl
}

// Get retrieves and unmarshals data from cache
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.GetCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}

	return nil
}

// Set marshals and stores data in cache using the helper TTL when ttl is zero
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, c.GetCacheKey(key), data, ttl).Err()
}

// generationKey counts invalidations of this helper. It sits outside the
// prefix so pattern invalidation never removes it.
func (c *CacheHelper) generationKey() string {
	return "gen:" + c.prefix
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *CacheHelper) generation(ctx context.Context, cmd stringGetter) (int64, error) {
	gen, err := cmd.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Delete removes keys and bumps the generation in a single transaction
func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}

	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = c.GetCacheKey(key)
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKeys...)
		pipe.Incr(ctx, c.generationKey())
		return nil
	})
	return err
}

// InvalidatePattern removes all keys matching a pattern using SCAN instead of KEYS
func (c *CacheHelper) InvalidatePattern(ctx context.Context, pattern string) error {
	if c.client == nil {
		return nil
	}

	fullPattern := c.GetCacheKey(pattern)
	var cursor uint64
	var keys []string

	for {
		var scanKeys []string
		var err error
		scanKeys, cursor, err = c.client.Scan(ctx, cursor, fullPattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan pattern error: %w", err)
		}
		keys = append(keys, scanKeys...)
		if cursor == 0 {
			break
		}
	}

	// bumped even when nothing matched: a concurrent fetch may be about to
	// write the key back
	pipe := c.client.Pipeline()
	pipe.Incr(ctx, c.generationKey())
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		pipe.Del(ctx, keys[i:end]...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pipeline delete error: %w", err)
	}

	return nil
}

// CacheOrExecute implements cache-aside. The fetched value is written back only
// when no invalidation of this helper happened since before the fetch, so a
// write committed during the fetch cannot be masked by the stale read.
func (c *CacheHelper) CacheOrExecute(ctx context.Context, key string, dest interface{}, fetchFunc func() (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}

	if !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheNotAvailable) {
		slog.WarnContext(ctx, "Cache get error, proceeding to fetch", "error", err, "key", c.GetCacheKey(key))
	}

	var (
		startGen int64
		canStore = c.client != nil
	)
	if canStore {
		if startGen, err = c.generation(ctx, c.client); err != nil {
			slog.WarnContext(ctx, "Cache generation read error, skipping write-back", "error", err, "key", c.GetCacheKey(key))
			canStore = false
		}
	}

	value, err := fetchFunc()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal result error: %w", err)
	}

	if canStore {
		c.storeIfUnchanged(ctx, key, data, startGen)
	}

	return json.Unmarshal(data, dest)
}

func (c *CacheHelper) storeIfUnchanged(ctx context.Context, key string, data []byte, startGen int64) {
	cacheKey := c.GetCacheKey(key)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		gen, err := c.generation(ctx, tx)
		if err != nil {
			return err
		}
		if gen != startGen {
			slog.DebugContext(ctx, "Cache invalidated during fetch, skipping write-back", "key", cacheKey)
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, data, c.ttl)
			return nil
		})
		return err
	}, c.generationKey())

	switch {
	case errors.Is(err, redis.TxFailedErr):
		slog.DebugContext(ctx, "Cache invalidated during write-back, skipped", "key", cacheKey)
	case err != nil:
		slog.ErrorContext(ctx, "Cache set error", "error", err, "key", cacheKey)
	}
}

// CacheManager groups the helpers used by the repositories and services
type CacheManager struct {
	client *redis.Client

	Course *CacheHelper
	User   *CacheHelper
	Stats  *CacheHelper
}

// NewCacheManager creates cache manager with all cache helpers. A nil client disables caching.
func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		client: client,
		Course: NewCacheHelper(client, CourseCacheConfig),
		User:   NewCacheHelper(client, UserCacheConfig),
		Stats:  NewCacheHelper(client, StatsCacheConfig),
	}
}

func (cm *CacheManager) Enabled() bool {
	return cm.client != nil
}

// HealthCheck verifies cache connectivity
func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if cm.client == nil {
		return ErrCacheNotAvailable
	}

	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}

	return nil
}
