package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/tierlink/internal/shortener"
)

// insertScript stores a mapping only if neither its short identifier nor its
// long url is taken. Returns 0 on success, 1 for a taken short, 2 for a
// taken long.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 1
end
if redis.call('HSETNX', KEYS[2], ARGV[2], ARGV[1]) == 0 then
	return 2
end
redis.call('HSET', KEYS[1], 'short', ARGV[1], 'long', ARGV[2], 'created_at', ARGV[3])
return 0
`)

// RedisStore is a Redis implementation of shortener.Repository and
// shortener.VisitRepository.
type RedisStore struct {
	client    *redis.Client
	prefix    string // "mapping:" + short -> hash
	longKey   string // long -> short
	visitsKey string // short -> visits
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "mapping:",
		longKey:   "mapping_longs",
		visitsKey: "mapping_visits",
	}
}

func (r *RedisStore) FindByLong(ctx context.Context, long string) (*shortener.Mapping, error) {
	short, err := r.client.HGet(ctx, r.longKey, long).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shortener.ErrNotFound
		}

		return nil, err
	}

	return r.FindByShort(ctx, shortener.Code(short))
}

func (r *RedisStore) FindByShort(ctx context.Context, short shortener.Code) (*shortener.Mapping, error) {
	result, err := r.client.HGetAll(ctx, r.prefix+string(short)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, shortener.ErrNotFound
	}

	return mappingFromHash(result), nil
}

func (r *RedisStore) Insert(ctx context.Context, mapping *shortener.Mapping) error {
	keys := []string{r.prefix + string(mapping.Short), r.longKey}

	code, err := insertScript.Run(ctx, r.client, keys,
		string(mapping.Short),
		mapping.Long,
		mapping.CreatedAt.UnixNano(),
	).Int()
	if err != nil {
		return err
	}

	switch code {
	case 1:
		return shortener.ErrShortTaken
	case 2:
		return shortener.ErrLongTaken
	default:
		return nil
	}
}

func (r *RedisStore) IncrementVisits(ctx context.Context, short shortener.Code) (uint64, error) {
	visits, err := r.client.HIncrBy(ctx, r.visitsKey, string(short), 1).Result()
	if err != nil {
		return 0, err
	}

	return uint64(visits), nil
}

func (r *RedisStore) Visits(ctx context.Context, short shortener.Code) (uint64, error) {
	visits, err := r.client.HGet(ctx, r.visitsKey, string(short)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, err
	}

	return visits, nil
}

// Ping checks Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func mappingFromHash(fields map[string]string) *shortener.Mapping {
	var createdAt time.Time

	if ts, ok := fields["created_at"]; ok {
		if nanos, err := strconv.ParseInt(ts, 10, 64); err == nil {
			createdAt = time.Unix(0, nanos)
		}
	}

	return &shortener.Mapping{
		Short:     shortener.Code(fields["short"]),
		Long:      fields["long"],
		CreatedAt: createdAt,
	}
}

var (
	_ shortener.Repository      = (*RedisStore)(nil)
	_ shortener.VisitRepository = (*RedisStore)(nil)
)
