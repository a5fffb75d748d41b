package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/tierlink/internal/analytics"
	analyticsstore "github.com/serroba/tierlink/internal/analytics/store"
	"github.com/serroba/tierlink/internal/handlers"
	"github.com/serroba/tierlink/internal/health"
	"github.com/serroba/tierlink/internal/idgen"
	"github.com/serroba/tierlink/internal/messaging"
	"github.com/serroba/tierlink/internal/metrics"
	"github.com/serroba/tierlink/internal/middleware"
	"github.com/serroba/tierlink/internal/ratelimit"
	"github.com/serroba/tierlink/internal/shortener"
	"github.com/serroba/tierlink/internal/store"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	// AnalyticsConsumerGroup is the Redis streams consumer group of the analytics consumer.
	AnalyticsConsumerGroup = "analytics"

	connectTimeout = 10 * time.Second
)

// mappingStore is implemented by every mapping backend.
type mappingStore interface {
	shortener.Repository
	shortener.VisitRepository
	health.Checker
}

// LoggerPackage provides a *zap.Logger configured from Options.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		return NewLogger(opts.LogFormat, opts.LogLevel)
	})
}

// NewLogger builds a production (json) or development (console) logger.
func NewLogger(format, level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if format == "json" {
		cfg = zap.NewProductionConfig()
	}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}

		cfg.Level = lvl
	}

	return cfg.Build()
}

// RedisPackage provides the shared *redis.Client.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*redis.Client, error) {
		opts := do.MustInvoke[*Options](i)

		return redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		}), nil
	})
}

// PostgresPackage provides a *store.PostgresStore with its schema in place.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*store.PostgresStore, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		s := store.NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()

			return nil, err
		}

		return s, nil
	})
}

// MongoPackage provides a *store.MongoStore with its indexes in place.
func MongoPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*store.MongoStore, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		client, err := mongo.Connect(mongooptions.Client().ApplyURI(opts.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}

		s := store.NewMongoStore(client, opts.MongoDatabase)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)

			return nil, err
		}

		return s, nil
	})
}

// RepositoryPackage provides the mapping and visit repositories of the
// configured backend, with the Redis read cache in front of the mappings
// when CacheTTL is set.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (mappingStore, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.Store {
		case StorePostgres:
			s, err := do.Invoke[*store.PostgresStore](i)
			if err != nil {
				return nil, err
			}

			return s, nil
		case StoreMongo:
			s, err := do.Invoke[*store.MongoStore](i)
			if err != nil {
				return nil, err
			}

			return s, nil
		case StoreRedis:
			return store.NewRedisStore(do.MustInvoke[*redis.Client](i)), nil
		case StoreMemory:
			return store.NewMemoryStore(), nil
		default:
			return nil, fmt.Errorf("unknown store %q", opts.Store)
		}
	})

	do.Provide(i, func(i *do.Injector) (shortener.Repository, error) {
		opts := do.MustInvoke[*Options](i)
		backend := do.MustInvoke[mappingStore](i)

		if opts.CacheTTL <= 0 {
			return backend, nil
		}

		return store.NewRedisCacheRepository(
			backend,
			do.MustInvoke[*redis.Client](i),
			opts.cacheTTL(),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (shortener.VisitRepository, error) {
		return do.MustInvoke[mappingStore](i), nil
	})
}

// IDGenPackage provides the identifier generator selected by Options.IDSource.
func IDGenPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (shortener.CodeGenerator, error) {
		opts := do.MustInvoke[*Options](i)

		generate, err := idgen.NewSource(idgen.Source(opts.IDSource))
		if err != nil {
			return nil, err
		}

		return generate, nil
	})
}

// MetricsPackage provides the Prometheus collectors.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
}

// ServicePackage provides the mapping service.
func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*shortener.Service, error) {
		opts := do.MustInvoke[*Options](i)

		return shortener.NewService(
			do.MustInvoke[shortener.Repository](i),
			do.MustInvoke[shortener.VisitRepository](i),
			do.MustInvoke[shortener.CodeGenerator](i),
			opts.BaseURL,
			do.MustInvoke[*zap.Logger](i),
			shortener.WithMaxAttempts(opts.MaxAttempts),
			shortener.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		), nil
	})
}

// PublisherGroupPackage provides the link event publish functions. Without
// Options.Events they discard events.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		publisher, err := messaging.NewRedisPublisher(
			do.MustInvoke[*redis.Client](i),
			do.MustInvoke[*zap.Logger](i),
		)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[analytics.LinkCreatedEvent], error) {
		if !do.MustInvoke[*Options](i).Events {
			return messaging.NopPublish[analytics.LinkCreatedEvent](), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[analytics.LinkCreatedEvent](group.Publisher(), analytics.TopicLinkCreated), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[analytics.LinkVisitedEvent], error) {
		if !do.MustInvoke[*Options](i).Events {
			return messaging.NopPublish[analytics.LinkVisitedEvent](), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[analytics.LinkVisitedEvent](group.Publisher(), analytics.TopicLinkVisited), nil
	})
}

// RateLimitPackage provides the request limiter with its counter store.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*rateLimitSweeper, error) {
		return startRateLimitSweeper(
			do.MustInvoke[*store.RateLimitMemoryStore](i), time.Minute, maxWindow, do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(_ *do.Injector) (*store.RateLimitMemoryStore, error) {
		return store.NewRateLimitMemoryStore(), nil
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.Limiter, error) {
		var counters ratelimit.Store

		if do.MustInvoke[*Options](i).RateLimitStore == StoreRedis {
			counters = store.NewRateLimitRedisStore(do.MustInvoke[*redis.Client](i))
		} else {
			counters = do.MustInvoke[*store.RateLimitMemoryStore](i)
			_ = do.MustInvoke[*rateLimitSweeper](i)
		}

		return ratelimit.NewLimiter(counters, defaultLimits...), nil
	})
}

// HealthPackage provides the health handler reporting the store and, when
// used, Redis.
func HealthPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*health.Handler, error) {
		deps := []health.Dependency{
			{Name: "store", Checker: do.MustInvoke[mappingStore](i)},
		}

		if do.MustInvoke[*Options](i).UsesRedis() {
			deps = append(deps, health.Dependency{
				Name:    "redis",
				Checker: health.NewRedisChecker(do.MustInvoke[*redis.Client](i)),
			})
		}

		return health.NewHandler(deps...), nil
	})
}

// HTTPPackage provides the router and the Huma API with all routes registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (*handlers.LinkHandler, error) {
		return handlers.NewLinkHandler(
			do.MustInvoke[*shortener.Service](i),
			do.MustInvoke[*Options](i).FallbackURL,
			do.MustInvoke[messaging.Publish[analytics.LinkCreatedEvent]](i),
			do.MustInvoke[messaging.Publish[analytics.LinkVisitedEvent]](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		m := do.MustInvoke[*metrics.Metrics](i)

		api := humachi.New(router, huma.DefaultConfig("Tierlink", "1.0.0"))

		// Middlewares apply to operations registered after them.
		api.UseMiddleware(m.Middleware())
		api.UseMiddleware(middleware.RequestMeta(api))
		api.UseMiddleware(middleware.RateLimiter(api, do.MustInvoke[*ratelimit.Limiter](i), logger))

		handlers.RegisterRoutes(api, do.MustInvoke[*handlers.LinkHandler](i))
		health.RegisterRoutes(api, do.MustInvoke[*health.Handler](i))

		router.Handle("/metrics", m.Handler())

		return api, nil
	})
}

// AnalyticsStorePackage provides the analytics store of the given kind:
// "log" or "redis".
func AnalyticsStorePackage(i *do.Injector, kind string) {
	do.Provide(i, func(i *do.Injector) (analytics.Store, error) {
		switch kind {
		case "redis":
			return analyticsstore.NewRedis(do.MustInvoke[*redis.Client](i)), nil
		case "log", "":
			return analyticsstore.NewLog(do.MustInvoke[*zap.Logger](i)), nil
		default:
			return nil, fmt.Errorf("unknown analytics store %q", kind)
		}
	})
}

// ConsumerGroupPackage provides the consumer group persisting link events.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (message.Subscriber, error) {
		return messaging.NewRedisSubscriber(
			do.MustInvoke[*redis.Client](i),
			AnalyticsConsumerGroup,
			do.MustInvoke[*zap.Logger](i),
		)
	})

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		subscriber := do.MustInvoke[message.Subscriber](i)
		logger := do.MustInvoke[*zap.Logger](i)

		group := messaging.NewConsumerGroup(subscriber, logger)
		for _, consumer := range analytics.NewConsumers(subscriber, do.MustInvoke[analytics.Store](i), logger) {
			group.Add(consumer)
		}

		return group, nil
	})
}
