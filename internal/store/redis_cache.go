package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/tierlink/internal/shortener"
	"go.uber.org/zap"
)

const (
	cacheMappingPrefix = "cache:mapping:"
	cacheLongPrefix    = "cache:long:"
)

// RedisCacheRepository wraps a Repository with Redis caching for reads.
// Every cache entry expires after ttl; a zero ttl keeps entries forever.
type RedisCacheRepository struct {
	store  shortener.Repository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store shortener.Repository, client *redis.Client, ttl time.Duration, logger *zap.Logger,
) *RedisCacheRepository {
	return &RedisCacheRepository{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Insert stores a mapping in the underlying store and updates the cache.
func (r *RedisCacheRepository) Insert(ctx context.Context, mapping *shortener.Mapping) error {
	if err := r.store.Insert(ctx, mapping); err != nil {
		return err
	}

	r.cache(ctx, mapping)

	return nil
}

// FindByShort checks the cache before the underlying store.
func (r *RedisCacheRepository) FindByShort(ctx context.Context, short shortener.Code) (*shortener.Mapping, error) {
	if mapping, err := r.fromCache(ctx, short); err == nil {
		return mapping, nil
	}

	mapping, err := r.store.FindByShort(ctx, short)
	if err != nil {
		return nil, err
	}

	r.cache(ctx, mapping)

	return mapping, nil
}

// FindByLong checks the long index cache before the underlying store.
func (r *RedisCacheRepository) FindByLong(ctx context.Context, long string) (*shortener.Mapping, error) {
	if short, err := r.client.Get(ctx, longCacheKey(long)).Result(); err == nil {
		mapping, err := r.fromCache(ctx, shortener.Code(short))
		if err == nil && mapping.Long == long {
			return mapping, nil
		}
	}

	mapping, err := r.store.FindByLong(ctx, long)
	if err != nil {
		return nil, err
	}

	r.cache(ctx, mapping)

	return mapping, nil
}

func (r *RedisCacheRepository) fromCache(ctx context.Context, short shortener.Code) (*shortener.Mapping, error) {
	result, err := r.client.HGetAll(ctx, cacheMappingPrefix+string(short)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, errCacheMiss
	}

	return mappingFromHash(result), nil
}

func (r *RedisCacheRepository) cache(ctx context.Context, mapping *shortener.Mapping) {
	pipe := r.client.Pipeline()
	key := cacheMappingPrefix + string(mapping.Short)

	pipe.HSet(ctx, key, map[string]interface{}{
		"short":      string(mapping.Short),
		"long":       mapping.Long,
		"created_at": mapping.CreatedAt.UnixNano(),
	})

	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	pipe.Set(ctx, longCacheKey(mapping.Long), string(mapping.Short), r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("failed to cache mapping",
			zap.String("short", string(mapping.Short)),
			zap.Error(err),
		)
	}
}

// longCacheKey hashes the long URL so key size stays bounded.
func longCacheKey(long string) string {
	sum := sha256.Sum256([]byte(long))

	return cacheLongPrefix + hex.EncodeToString(sum[:])
}

var errCacheMiss = errors.New("cache miss")

// Compile-time check.
var _ shortener.Repository = (*RedisCacheRepository)(nil)
