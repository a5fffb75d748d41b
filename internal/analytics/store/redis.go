package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/tierlink/internal/analytics"
)

const directReferrer = "direct"

// Redis keeps per-link aggregates: creation time, last visit time and
// visits per referrer.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed analytics store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "analytics:"}
}

func (r *Redis) SaveLinkCreated(ctx context.Context, event *analytics.LinkCreatedEvent) error {
	return r.client.HSet(ctx, r.linkKey(event.Short),
		"long", event.Long,
		"created_at", event.CreatedAt.UnixMilli(),
	).Err()
}

func (r *Redis) SaveLinkVisited(ctx context.Context, event *analytics.LinkVisitedEvent) error {
	referrer := event.Referrer
	if referrer == "" {
		referrer = directReferrer
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.linkKey(event.Short), "last_visit_at", event.VisitedAt.UnixMilli())
	pipe.ZIncrBy(ctx, r.referrersKey(event.Short), 1, referrer)

	_, err := pipe.Exec(ctx)

	return err
}

func (r *Redis) linkKey(short string) string {
	return r.prefix + "link:" + short
}

func (r *Redis) referrersKey(short string) string {
	return r.prefix + "referrers:" + short
}

var _ analytics.Store = (*Redis)(nil)
